package address

import "github.com/spf13/cobra"

var (
	// Cmd exposes the top-level ip command.
	Cmd = &cobra.Command{
		Use:     "ip",
		Aliases: []string{"address"},
		Short:   "Address allocation",
	}
)

func init() {
	Cmd.AddCommand(
		allocateCmd,
		bulkCmd,
		releaseCmd,
		inspectCmd,
		listCmd,
		setStateCmd,
	)
}
