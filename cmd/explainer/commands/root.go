package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slidedeck/explainer/internal/config"
	"github.com/slidedeck/explainer/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "explainer",
	Short: "Explain slide decks slide by slide",
	Long: `explainer accepts .pptx and .pdf slide decks, explains every slide with an
OpenAI-compatible chat model in the background, and serves the results over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		} else if cfg.Debug {
			cfg.LogLevel = "debug"
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		logger = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default $EXPLAINER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
