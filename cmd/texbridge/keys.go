package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neboloop/texbridge/internal/input"
)

// KeysCmd prints the key names input events accept.
func KeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List key names and their virtual key codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCODE")
			for _, name := range input.KeyNames() {
				code, _ := input.KeyCode(name)
				fmt.Fprintf(w, "%s\t%d\n", name, code)
			}
			return w.Flush()
		},
	}
}
