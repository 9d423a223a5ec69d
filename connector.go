package olake

import (
	"os"
	"runtime/debug"

	_ "github.com/datazip-inc/olake-cdc/drivers/mongodb"  // registering mongodb source
	_ "github.com/datazip-inc/olake-cdc/drivers/mysql"    // registering mysql source
	_ "github.com/datazip-inc/olake-cdc/drivers/postgres" // registering postgres source
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/protocol"
	_ "github.com/datazip-inc/olake-cdc/writers/parquet" // registering parquet writer
)

// Execute runs the root command with every source and writer registered
func Execute() {
	defer recovery()

	if err := protocol.CreateRootCommand().Execute(); err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}

func recovery() {
	if r := recover(); r != nil {
		logger.Fatalf("panic recovered: %v\n%s", r, debug.Stack())
	}
}
