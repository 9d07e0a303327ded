package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// redisCmd groups Redis-related subcommands.
var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis utilities for the publish history",
}

var errRedisDisabled = errors.New("redis is not configured: set redis.addr in config.yaml")

func init() {
	rootCmd.AddCommand(redisCmd)
}
