package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SpiceLabsHQ/tfapi/internal/cli"
)

// Build-time variables injected via ldflags. Dev defaults are used when
// building without ldflags (go run, go test).
//
//	go build -ldflags "-X github.com/SpiceLabsHQ/tfapi/cmd.version=1.0.0
//	  -X github.com/SpiceLabsHQ/tfapi/cmd.commit=abc1234
//	  -X github.com/SpiceLabsHQ/tfapi/cmd.date=2024-01-15"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type versionJSON struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of tfapi",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cliCtx := cli.FromCommand(cmd); cliCtx != nil && cliCtx.JSON {
				return writeJSON(cmd.OutOrStdout(), versionJSON{Version: version, Commit: commit, Date: date})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(),
				"tfapi version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
			return err
		},
	}
}
