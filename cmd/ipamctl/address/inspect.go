package address

import (
	"errors"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	inspectCmd = &cobra.Command{
		Use:   "inspect <subnet ID> <address>",
		Short: "Inspect an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("subnet ID and address are required")
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			a, err := r.GetAddress(common.Context(cmd), args[0], args[1])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 8, 8, 8, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			common.FprintfIfNotEmpty(w, "Address:\t%s\n", a.Address)
			common.FprintfIfNotEmpty(w, "State:\t%s\n", a.State.String())
			common.FprintfIfNotEmpty(w, "Version:\t%s\n", a.IPVersion.String())
			common.FprintfIfNotEmpty(w, "Subnet:\t%s\n", a.SubnetID)
			common.FprintfIfNotEmpty(w, "Range:\t%s\n", a.RangeID)
			return nil
		},
	}
)
