package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/address"
	"github.com/vfabric/privateip/cmd/ipamctl/common"
	"github.com/vfabric/privateip/cmd/ipamctl/ranges"
	"github.com/vfabric/privateip/manager/allocator/registry"
	"github.com/vfabric/privateip/version"
)

func main() {
	if c, err := mainCmd.ExecuteC(); err != nil {
		c.PrintErrln("Error:", err)
		os.Exit(-1)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:           os.Args[0],
		Short:         "Manage private IP address ranges",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			logrus.SetOutput(os.Stderr)
			return nil
		},
	}
)

func init() {
	flags := mainCmd.PersistentFlags()
	flags.StringP("backend", "b", common.BackendBolt, "State backend, bolt or redis")
	flags.StringP("state-dir", "d", common.DefaultStateDir(), "State directory of the bolt backend")
	flags.String("redis-addr", "127.0.0.1:6379", "Address of the redis backend")
	flags.String("redis-prefix", "ipam", "Key prefix on the redis backend")
	flags.StringP("log-level", "l", "warn", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")
	flags.Duration("lock-timeout", registry.DefaultConfig().LockTimeout, "Maximum wait for the lock of a subnet")

	mainCmd.AddCommand(
		ranges.Cmd,
		address.Cmd,
		version.Cmd,
	)
}
