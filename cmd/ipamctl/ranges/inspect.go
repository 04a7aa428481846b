package ranges

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	inspectCmd = &cobra.Command{
		Use:   "inspect <subnet ID>",
		Short: "Inspect the address range of a subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("subnet ID missing")
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			info, err := r.GetRange(common.Context(cmd), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 8, 8, 8, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			rec := info.Range
			common.FprintfIfNotEmpty(w, "ID:\t%s\n", rec.ID)
			common.FprintfIfNotEmpty(w, "Subnet:\t%s\n", rec.SubnetID)
			common.FprintfIfNotEmpty(w, "VPC:\t%s\n", rec.VpcID)
			common.FprintfIfNotEmpty(w, "Version:\t%s\n", rec.IPVersion.String())
			common.FprintfIfNotEmpty(w, "First:\t%s\n", rec.FirstIP)
			common.FprintfIfNotEmpty(w, "Last:\t%s\n", rec.LastIP)
			if !rec.CreatedAt.IsZero() {
				fmt.Fprintf(w, "Created:\t%s\n", humanize.Time(rec.CreatedAt))
			}
			fmt.Fprintf(w, "Used:\t%s of %s (%.1f%%)\n",
				humanize.Comma(int64(info.Used)), humanize.Comma(int64(info.Total)),
				100*float64(info.Used)/float64(info.Total))
			return nil
		},
	}
)
