package ranges

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/cmd/ipamctl/common"
	"github.com/vfabric/privateip/manager/allocator/registry"
)

var (
	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create the address range of a subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errors.New("create command takes no arguments")
			}

			flags := cmd.Flags()
			if !flags.Changed("subnet") {
				return errors.New("--subnet is required")
			}
			if flags.Changed("cidr") == (flags.Changed("first") || flags.Changed("last")) {
				return errors.New("either --cidr or --first and --last are required")
			}

			var (
				spec registry.RangeSpec
				err  error
			)
			if spec.SubnetID, err = flags.GetString("subnet"); err != nil {
				return err
			}
			if spec.VpcID, err = flags.GetString("vpc"); err != nil {
				return err
			}
			if spec.ID, err = flags.GetString("id"); err != nil {
				return err
			}
			if spec.CIDR, err = flags.GetString("cidr"); err != nil {
				return err
			}
			if spec.FirstIP, err = flags.GetString("first"); err != nil {
				return err
			}
			if spec.LastIP, err = flags.GetString("last"); err != nil {
				return err
			}
			if flags.Changed("ip-version") {
				v, err := flags.GetString("ip-version")
				if err != nil {
					return err
				}
				if spec.IPVersion, err = api.ParseIPVersion(v); err != nil {
					return err
				}
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			rec, err := r.CreateRange(common.Context(cmd), spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
)

func init() {
	flags := createCmd.Flags()
	flags.String("subnet", "", "Subnet id owning the range")
	flags.String("vpc", "", "VPC id of the subnet")
	flags.String("id", "", "Range id, generated when empty")
	flags.String("cidr", "", "Subnet CIDR to derive the bounds from")
	flags.String("first", "", "First address of the range")
	flags.String("last", "", "Last address of the range")
	flags.String("ip-version", "", "Address family, 4 or 6, inferred when empty")
}
