package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go-seedkeeper/internal/config"
	"go-seedkeeper/internal/models"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// dataDirFlag holds the value of the --data-dir flag
var dataDirFlag string

// logLevel and logFormat hold the logging flags
var (
	logLevel  string
	logFormat string
)

// downloadDirFlag holds the value of the --download-dir flag
var downloadDirFlag string

// listenPortFlag holds the value of the --port flag
var listenPortFlag int

// settings holds the loaded configuration
var settings *config.Manager

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "seedkeeper",
	Short: "A headless torrent session keeper",
	Long: `Seedkeeper keeps torrent sessions running across restarts, adds torrents
from watched folders, the clipboard and the command line, and runs
post-completion actions.`,
	PersistentPreRunE: loadSettings,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory holding settings, cache and history (default is ~/.config/seedkeeper)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&downloadDirFlag, "download-dir", "", "Default download location (overrides settings for this run)")
	rootCmd.PersistentFlags().IntVar(&listenPortFlag, "port", 0, "Peer listen port (overrides settings for this run)")
}

// loadSettings loads the settings file and sets up logging before any command runs.
func loadSettings(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed to read .env file")
	}

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = os.Getenv(config.EnvPrefix + "_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = config.DefaultDataPath()
	}

	flags := cmd.Flags()
	var cli config.CliFlags
	if flags.Changed("log-level") {
		cli.LogLevel = &logLevel
	}
	if flags.Changed("log-format") {
		cli.LogFormat = &logFormat
	}
	if flags.Changed("download-dir") {
		cli.DefaultDownloadLocation = &downloadDirFlag
	}
	if flags.Changed("port") {
		cli.ListenPort = &listenPortFlag
	}

	m, err := config.Load(dataDir, cli)
	switch {
	case errors.Is(err, config.ErrCorrupt):
		log.WithError(err).Error("Your settings are corrupted. They have been reset to the defaults.")
	case err != nil:
		return fmt.Errorf("loading settings: %w", err)
	}
	settings = m

	initLogging(settings.Settings())
	log.Debugf("Using settings file %s", settings.Path())
	return nil
}

// initLogging applies the log level and format from the settings.
func initLogging(s models.Settings) {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", s.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch s.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
