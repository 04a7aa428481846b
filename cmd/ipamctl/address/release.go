package address

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	releaseCmd = &cobra.Command{
		Use:     "release <subnet ID> <address...>",
		Short:   "Release addresses of a subnet",
		Aliases: []string{"rm"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errors.New("subnet ID and at least one address are required")
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			ctx := common.Context(cmd)
			if len(args) == 2 {
				return r.Release(ctx, args[0], args[1])
			}
			return r.ReleaseBulk(ctx, args[0], args[1:])
		},
	}
)
