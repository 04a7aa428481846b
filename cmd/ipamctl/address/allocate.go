package address

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	allocateCmd = &cobra.Command{
		Use:   "allocate <subnet ID> [address...]",
		Short: "Allocate addresses in a subnet",
		Long: "Allocate the lowest free address of a subnet, or the given addresses.\n" +
			"A list of addresses is allocated in order up to the first one that\n" +
			"cannot be allocated; the addresses before it stay allocated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("subnet ID missing")
			}
			subnetID, addrs := args[0], args[1:]

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			ctx := common.Context(cmd)
			var allocs []*api.Allocation
			switch len(addrs) {
			case 0, 1:
				addr := ""
				if len(addrs) == 1 {
					addr = addrs[0]
				}
				a, err := r.Allocate(ctx, subnetID, addr)
				if err != nil {
					return err
				}
				allocs = []*api.Allocation{a}
			default:
				if allocs, err = r.AllocateList(ctx, subnetID, addrs); err != nil {
					return err
				}
			}

			printAllocations(cmd, allocs)
			if len(allocs) < len(addrs) {
				return fmt.Errorf("allocated %d of %d addresses, stopped at %s", len(allocs), len(addrs), addrs[len(allocs)])
			}
			return nil
		},
	}

	bulkCmd = &cobra.Command{
		Use:   "bulk <subnet ID>",
		Short: "Allocate a number of addresses in a subnet, all or none",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("subnet ID missing")
			}
			count, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}
			if count <= 0 {
				return errors.New("--count must be positive")
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			allocs, err := r.AllocateBulk(common.Context(cmd), args[0], count)
			if err != nil {
				return err
			}
			printAllocations(cmd, allocs)
			return nil
		},
	}
)

func init() {
	bulkCmd.Flags().IntP("count", "c", 1, "Number of addresses")
}

func printAllocations(cmd *cobra.Command, allocs []*api.Allocation) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer func() {
		// Ignore flushing errors - there's nothing we can do.
		_ = w.Flush()
	}()
	common.PrintAllocations(w, allocs)
}

