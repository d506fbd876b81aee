package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/app"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/common"
)

var (
	// Command-line flags
	configFiles []string
	apiKey      string
	assistantID string
	logLevel    string

	// Global state
	config      *common.Config
	logger      arbor.ILogger
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "assay",
	Short: "Prepare documents and media for the smart-assistant API and submit them",
	Long: `assay extracts text from PDF and DOCX files, merges documents, rasterises PDFs,
samples video frames, extracts and converts audio/video with ffmpeg, and submits
the results to the hosted analysis API.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		common.PrintBanner(common.GetVersion())
		_ = cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be repeated, later files override earlier ones)")
	flags.StringVar(&apiKey, "api-key", "", "API key (overrides config and ASSAY_API_KEY)")
	flags.StringVar(&assistantID, "assistant", "", "Assistant ID (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(
		pdfTextCmd,
		pdfImageCmd,
		docxTextCmd,
		mergeCmd,
		framesCmd,
		audioCmd,
		convertCmd,
		analyzeCmd,
		batchCmd,
		historyCmd,
		versionCmd,
	)
}

// setup runs before every command. Order: config files -> env -> flags,
// then logger, then services.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("assay.toml"); err == nil {
			configFiles = append(configFiles, "assay.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return err
	}
	common.ApplyFlagOverrides(config, apiKey, assistantID, logLevel)

	logger = common.SetupLogger(config)
	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Str("api_url", config.API.URL).
		Str("version", common.GetFullVersion()).
		Msg("Configuration loaded")

	application, err = app.New(config, logger)
	return err
}

func main() {
	common.LoadVersionFromFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(report(err))
	}
}

// report prints err to stderr and returns the process exit code.
// Classified errors already start with their kind.
func report(err error) int {
	kind := apperr.KindOf(err)
	if kind == "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stderr, err)
	if kind == apperr.KindInvalidParameter {
		return 2
	}
	return 1
}
