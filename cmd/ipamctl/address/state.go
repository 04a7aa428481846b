package address

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/cmd/ipamctl/common"
)

var (
	setStateCmd = &cobra.Command{
		Use:   "set-state <subnet ID> <address> <free|activated|deactivated>",
		Short: "Set the lifecycle state of an allocated address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return errors.New("subnet ID, address and state are required")
			}
			st, err := api.ParseState(args[2])
			if err != nil {
				return err
			}

			r, closer, err := common.Open(cmd)
			if err != nil {
				return err
			}
			defer closer()

			a, err := r.ModifyState(common.Context(cmd), args[0], args[1], st)
			if err != nil {
				return err
			}
			printAllocations(cmd, []*api.Allocation{a})
			return nil
		},
	}
)
