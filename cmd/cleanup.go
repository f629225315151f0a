package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SpiceLabsHQ/tfapi/internal/cli"
	"github.com/SpiceLabsHQ/tfapi/internal/progress"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
)

// confirmWord must be typed to confirm an interactive cleanup.
const confirmWord = "delete"

// bucketSweeper is the part of sweep.Sweeper the cleanup command uses.
type bucketSweeper interface {
	FindCandidates(ctx context.Context) ([]string, error)
	CleanupBuckets(ctx context.Context, names []string) *sweep.Summary
}

func newCleanupCommand(clients *awsClients) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every tfapi-managed bucket",
		Long: "Find every bucket that follows the tfapi naming convention or is " +
			"tracked in the registry, empty it and delete it. Buckets that fail " +
			"are reported and skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appForCommand(cmd, clients)
			if err != nil {
				return err
			}
			defer a.Close()
			return runCleanup(cmd, a.sweeper)
		},
	}
}

// appForCommand builds the runtime from the loaded CLI context.
func appForCommand(cmd *cobra.Command, clients *awsClients) (*app, error) {
	cliCtx := cli.FromCommand(cmd)
	if cliCtx == nil || cliCtx.Config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	ctx := cmd.Context()
	c := clients
	if c == nil {
		var err error
		if c, err = loadAWSClients(ctx, cliCtx.Config); err != nil {
			return nil, err
		}
	}
	return newApp(ctx, cliCtx.Config, cliCtx.Logger(), c)
}

// runCleanup lists candidates, confirms unless --yes, and deletes them.
// It fails when discovery fails or any bucket survives.
func runCleanup(cmd *cobra.Command, sw bucketSweeper) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cliCtx := cli.FromCommand(cmd)
	jsonOut, yes := false, false
	if cliCtx != nil {
		jsonOut, yes = cliCtx.JSON, cliCtx.Yes
	}
	w := cmd.OutOrStdout()

	if jsonOut && !yes {
		writeJSONError(w, fmt.Errorf("--yes is required with --json"))
		return silentExitError{}
	}

	candidates, err := sw.FindCandidates(ctx)
	if err != nil {
		if jsonOut {
			_ = writeJSON(w, &sweep.Summary{Success: false, Buckets: []sweep.BucketResult{}, Error: err.Error()})
			return silentExitError{}
		}
		return fmt.Errorf("discovering buckets: %w", err)
	}

	if len(candidates) == 0 {
		if jsonOut {
			return writeJSON(w, &sweep.Summary{Success: true, Buckets: []sweep.BucketResult{}})
		}
		fmt.Fprintln(w, "No managed buckets found.")
		return nil
	}

	if !jsonOut {
		fmt.Fprintf(w, "This will permanently delete %d bucket(s) and every object in them:\n", len(candidates))
		for _, name := range candidates {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
	if !yes {
		fmt.Fprintf(w, "\nType %q to confirm: ", confirmWord)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if !scanner.Scan() {
			return fmt.Errorf("no confirmation input received, cleanup aborted")
		}
		if input := strings.TrimSpace(scanner.Text()); input != confirmWord {
			return fmt.Errorf("confirmation %q does not match %q, cleanup aborted", input, confirmWord)
		}
	}

	sp := progress.ForCommand(w, jsonOut)
	sp.Start(fmt.Sprintf("Deleting %d bucket(s)...", len(candidates)))
	summary := sw.CleanupBuckets(ctx, candidates)
	failed := summary.Total - summary.Deleted

	if jsonOut {
		if err := writeJSON(w, summary); err != nil {
			return err
		}
		if failed > 0 {
			return silentExitError{}
		}
		return nil
	}

	if failed > 0 {
		sp.Fail(fmt.Sprintf("Deleted %d of %d buckets", summary.Deleted, summary.Total))
	} else {
		sp.Stop(fmt.Sprintf("Deleted %d of %d buckets", summary.Deleted, summary.Total))
	}
	for _, b := range summary.Buckets {
		if b.Error != "" {
			fmt.Fprintf(w, "Warning: %s: %s\n", b.Name, b.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d bucket(s) could not be deleted", failed)
	}
	return nil
}
