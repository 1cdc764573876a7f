package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oopzlab/oopzbot/cmd/oopzbot/internal/run"
	"github.com/oopzlab/oopzbot/cmd/oopzbot/internal/version"
)

func NewOopzbotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "oopzbot",
		Short:   "oopzbot - Oopz platform chat bot",
		Example: "oopzbot run --config config.json",
	}

	cmd.AddCommand(
		run.NewRunCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewOopzbotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
