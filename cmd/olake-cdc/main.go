package main

import olake "github.com/datazip-inc/olake-cdc"

func main() {
	olake.Execute()
}
