// Command bpmctl is a small operator-facing harness for the buffer pool:
// it opens a data file, replays a synthetic access trace against it, and
// prints the resulting pool statistics. It is not a network-facing server.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vaultpage/vaultpage/src/app"
	"github.com/vaultpage/vaultpage/src/cli"
)

func main() {
	root := cli.Init("bpmctl")
	root.AddCommand(newRunCommand(root))
	root.MustExecute(context.Background())
}

func newRunCommand(root *cli.RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "load a data file, replay a synthetic access trace, and print pool statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), &app.BPMEntrypoint{ConfigPath: root.Options.ConfigPath})
		},
	}
}
