package mongodb

import (
	"fmt"
	"strings"

	"github.com/datazip-inc/olake-cdc/utils"
)

type Config struct {
	Hosts          []string `json:"hosts" validate:"required,min=1"`
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	AuthDB         string   `json:"authdb"`
	ReplicaSet     string   `json:"replica_set"`
	ReadPreference string   `json:"read_preference"`
	Srv            bool     `json:"srv"`
	Database       string   `json:"database" validate:"required"`
	// MaxAwaitTime in seconds an idle change stream waits before reporting progress
	MaxAwaitTime int `json:"max_await_time" validate:"gte=0"`
}

func (c *Config) URI() string {
	connectionPrefix := "mongodb"
	options := fmt.Sprintf("?authSource=%s", c.AuthDB)
	if c.Srv {
		connectionPrefix = "mongodb+srv"
	}

	if c.ReplicaSet != "" {
		if c.ReadPreference == "" {
			c.ReadPreference = "secondaryPreferred"
		}
		options = fmt.Sprintf("%s&replicaSet=%s&readPreference=%s", options, c.ReplicaSet, c.ReadPreference)
	}

	auth := ""
	if c.Username != "" {
		auth = c.Username + "@"
		if c.Password != "" {
			auth = c.Username + ":" + c.Password + "@"
		}
	}

	return fmt.Sprintf(
		"%s://%s%s/%s",
		connectionPrefix, auth, strings.Join(c.Hosts, ","), options,
	)
}

func (c *Config) Validate() error {
	if c.AuthDB == "" {
		c.AuthDB = "admin"
	}
	if c.MaxAwaitTime == 0 {
		c.MaxAwaitTime = 10
	}

	return utils.Validate(c)
}
