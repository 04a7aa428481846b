package ranges

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	removeCmd = &cobra.Command{
		Use:     "remove <subnet ID...>",
		Short:   "Remove the address range of subnets",
		Aliases: []string{"rm"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("subnet ID missing")
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			for _, subnetID := range args {
				if err := r.DeleteRange(common.Context(cmd), subnetID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), subnetID)
			}
			return nil
		},
	}
)
