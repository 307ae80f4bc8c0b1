package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oslianyabel/basic-wa-bot/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WhatsApp webhook server",
	Long: `Run the webhook server in the foreground. It answers the Meta
verification handshake, processes inbound messages and replies through
the WhatsApp Cloud API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := setupLogger(cfg.Logging, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer log.Close()

	zl := log.Zerolog()
	if err := setupErrorTracking(cfg.Sentry); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize error tracking")
	}
	zl.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	d, err := daemon.New(cfg, zl)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	return d.Wait()
}
