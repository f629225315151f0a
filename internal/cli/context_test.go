package cli

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTestCommand(args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	// Register persistent flags matching root command conventions
	cmd.PersistentFlags().String("config", "", "")
	cmd.PersistentFlags().Bool("debug", false, "")
	cmd.PersistentFlags().Bool("json", false, "")
	cmd.PersistentFlags().Bool("yes", false, "")
	_ = cmd.ParseFlags(args)
	return cmd
}

func TestNewCLIContextDefaults(t *testing.T) {
	ctx := NewCLIContext(newTestCommand())

	if ctx.ConfigPath != "" {
		t.Errorf("ConfigPath should default to empty, got %q", ctx.ConfigPath)
	}
	if ctx.Debug || ctx.JSON || ctx.Yes {
		t.Errorf("bool flags should default to false: %+v", ctx)
	}
	if ctx.Config != nil || ctx.Log != nil {
		t.Error("Config and Log are filled in by the caller")
	}
}

func TestNewCLIContextCapturesFlags(t *testing.T) {
	ctx := NewCLIContext(newTestCommand("--config=/etc/tfapi.toml", "--debug", "--json", "--yes"))

	if ctx.ConfigPath != "/etc/tfapi.toml" {
		t.Errorf("ConfigPath = %q", ctx.ConfigPath)
	}
	if !ctx.Debug || !ctx.JSON || !ctx.Yes {
		t.Errorf("flags not captured: %+v", ctx)
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	original := &CLIContext{JSON: true}
	got := FromContext(WithContext(context.Background(), original))
	if got != original {
		t.Fatalf("FromContext() = %p, want %p", got, original)
	}
}

func TestFromContextMissingReturnsNil(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}

func TestFromCommandIntegration(t *testing.T) {
	root := newTestCommand("--debug")
	cliCtx := NewCLIContext(root)
	root.SetContext(WithContext(context.Background(), cliCtx))

	if got := FromCommand(root); got != cliCtx {
		t.Errorf("FromCommand() = %p, want %p", got, cliCtx)
	}
}

func TestFromCommandWithoutContextReturnsNil(t *testing.T) {
	if got := FromCommand(&cobra.Command{Use: "bare"}); got != nil {
		t.Errorf("FromCommand() = %+v, want nil", got)
	}
}

func TestLoggerFallsBackToNop(t *testing.T) {
	var nilCtx *CLIContext
	if nilCtx.Logger() == nil {
		t.Fatal("Logger() on nil context returned nil")
	}

	l := zap.NewExample()
	if got := (&CLIContext{Log: l}).Logger(); got != l {
		t.Error("Logger() should return the configured logger")
	}
}
