package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oopzlab/oopzbot/cmd/oopzbot/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("oopzbot %s (built %s)\n", internal.FormatVersion(), internal.BuildTime())
		},
	}
}
