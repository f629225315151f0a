// Package cli provides shared CLI infrastructure for the tfapi command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/config"
)

// contextKey is an unexported type for context value keys in this package.
type contextKey struct{}

// CLIContext captures the global persistent flags plus the configuration
// and logger built from them. Created once in PersistentPreRunE and
// retrieved by subcommands.
type CLIContext struct {
	ConfigPath string
	Debug      bool
	JSON       bool
	Yes        bool

	Config *config.Config
	Log    *zap.Logger
}

// NewCLIContext extracts global flag values from a cobra command's persistent
// flags and returns a populated CLIContext. Config and Log are left for the
// caller to fill in.
func NewCLIContext(cmd *cobra.Command) *CLIContext {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	jsonFlag, _ := cmd.Flags().GetBool("json")
	yes, _ := cmd.Flags().GetBool("yes")

	return &CLIContext{
		ConfigPath: configPath,
		Debug:      debug,
		JSON:       jsonFlag,
		Yes:        yes,
	}
}

// Logger returns the configured logger, or a no-op logger when none is set.
func (c *CLIContext) Logger() *zap.Logger {
	if c == nil || c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// WithContext returns a new context.Context carrying the given CLIContext.
func WithContext(ctx context.Context, cliCtx *CLIContext) context.Context {
	return context.WithValue(ctx, contextKey{}, cliCtx)
}

// FromContext extracts the CLIContext from a context.Context, or returns nil if
// none is present.
func FromContext(ctx context.Context) *CLIContext {
	cliCtx, _ := ctx.Value(contextKey{}).(*CLIContext)
	return cliCtx
}

// FromCommand extracts the CLIContext from a cobra command's context, or returns
// nil if none is present. This is the primary accessor for subcommands.
func FromCommand(cmd *cobra.Command) *CLIContext {
	if cmd.Context() == nil {
		return nil
	}
	return FromContext(cmd.Context())
}
