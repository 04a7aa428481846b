package address

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	listCmd = &cobra.Command{
		Use:   "ls <subnet ID>",
		Short: "List the allocated addresses of a subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("subnet ID missing")
			}

			quiet, err := cmd.Flags().GetBool("quiet")
			if err != nil {
				return err
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			allocs, err := r.ListAllocations(common.Context(cmd), args[0])
			if err != nil {
				return err
			}

			if quiet {
				for _, a := range allocs {
					fmt.Fprintln(cmd.OutOrStdout(), a.Address)
				}
				return nil
			}
			printAllocations(cmd, allocs)
			return nil
		},
	}
)

func init() {
	listCmd.Flags().BoolP("quiet", "q", false, "Only display addresses")
}
