package ranges

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/cmd/ipamctl/common"
	"github.com/vfabric/privateip/manager/allocator/registry"
)

var (
	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List address ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errors.New("ls command takes no arguments")
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

			infos, err := r.ListRanges(common.Context(cmd))
			if err != nil {
				return err
			}

			var output func(info *registry.RangeInfo)

			if !quiet {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer func() {
					// Ignore flushing errors - there's nothing we can do.
					_ = w.Flush()
				}()
				common.PrintHeader(w, "Subnet", "ID", "Version", "First", "Last", "Used", "Total")
				output = func(info *registry.RangeInfo) {
					rec := info.Range
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						rec.SubnetID,
						rec.ID,
						rec.IPVersion,
						rec.FirstIP,
						rec.LastIP,
						humanize.Comma(int64(info.Used)),
						humanize.Comma(int64(info.Total)),
					)
				}
			} else {
				output = func(info *registry.RangeInfo) { fmt.Fprintln(cmd.OutOrStdout(), info.Range.SubnetID) }
			}

			for _, info := range infos {
				output(info)
			}
			return nil
		},
	}
)

func init() {
	listCmd.Flags().BoolP("quiet", "q", false, "Only display subnet IDs")
}
