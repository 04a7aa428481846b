package ranges

import "github.com/spf13/cobra"

var (
	// Cmd exposes the top-level range command.
	Cmd = &cobra.Command{
		Use:     "range",
		Aliases: []string{"ranges"},
		Short:   "Address range management",
	}
)

func init() {
	Cmd.AddCommand(
		createCmd,
		inspectCmd,
		listCmd,
		removeCmd,
	)
}
