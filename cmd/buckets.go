package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SpiceLabsHQ/tfapi/internal/cli"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
)

// bucketJSON is one row of `tfapi buckets --json`.
type bucketJSON struct {
	Name      string   `json:"name"`
	Tracked   bool     `json:"tracked"`
	Templates []string `json:"templates"`
}

func newBucketsCommand(clients *awsClients) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List the buckets a cleanup would delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appForCommand(cmd, clients)
			if err != nil {
				return err
			}
			defer a.Close()
			return runBuckets(cmd, a.sweeper, a.registry)
		},
	}
}

// runBuckets prints every cleanup candidate with whether the registry
// tracks it and which templates map to it.
func runBuckets(cmd *cobra.Command, sw bucketSweeper, reg *registry.Registry) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cliCtx := cli.FromCommand(cmd)
	w := cmd.OutOrStdout()

	rows, err := bucketRows(ctx, sw, reg)
	if err != nil {
		if cliCtx != nil && cliCtx.JSON {
			writeJSONError(w, err)
			return silentExitError{}
		}
		return err
	}

	if cliCtx != nil && cliCtx.JSON {
		return writeJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No managed buckets found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tTRACKED\tTEMPLATES")
	for _, r := range rows {
		templates := "-"
		if len(r.Templates) > 0 {
			templates = fmt.Sprint(r.Templates)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", r.Name, r.Tracked, templates)
	}
	return tw.Flush()
}

func bucketRows(ctx context.Context, sw bucketSweeper, reg *registry.Registry) ([]bucketJSON, error) {
	candidates, err := sw.FindCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering buckets: %w", err)
	}
	tracked, err := reg.Tracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tracked buckets: %w", err)
	}
	mappings, err := reg.Mappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}

	isTracked := make(map[string]bool, len(tracked))
	for _, name := range tracked {
		isTracked[name] = true
	}
	byBucket := make(map[string][]string)
	for _, m := range mappings {
		byBucket[m.Bucket] = append(byBucket[m.Bucket], m.Template)
	}

	rows := make([]bucketJSON, 0, len(candidates))
	for _, name := range candidates {
		templates := byBucket[name]
		if templates == nil {
			templates = []string{}
		}
		rows = append(rows, bucketJSON{Name: name, Tracked: isTracked[name], Templates: templates})
	}
	return rows, nil
}
