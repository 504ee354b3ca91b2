package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/objectionary/eoprobe/internal/branding"
	"github.com/objectionary/eoprobe/internal/config"
	"github.com/objectionary/eoprobe/internal/ctxlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` reads the probe metas of compiled EO programs, looks the
referenced objects up in the Objectionary and registers the ones that exist
in the foreign-objects catalog, so the next build round can pull them in.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()
		logger := ctxlog.New(cmd.ErrOrStderr(), viper.GetBool(config.KeyDebug))
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(ctxlog.WithLogger(ctx, logger))
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Print debug logs to stderr")
	_ = viper.BindPFlag(config.KeyDebug, rootCmd.PersistentFlags().Lookup("debug"))
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
