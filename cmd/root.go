/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/longkey1/chatc/internal/chatc/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatc",
	Short: "A CLI client for a streaming chat backend",
	Long: `chatc is a command-line client for a multi-model chat backend.
It logs in, manages conversations and model configurations, and streams
assistant replies as they are generated.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/chatc/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// userConfigDir returns $HOME/.config/chatc.
func userConfigDir() string {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)
	return filepath.Join(home, ".config", "chatc")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// .env is optional
	if err := godotenv.Load(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env")
	}

	viper.SetEnvPrefix("CHATC")
	viper.AutomaticEnv()

	dir := userConfigDir()
	defaultConfig := config.NewDefaultConfig("")

	viper.SetDefault("base_url", defaultConfig.BaseURL)
	viper.SetDefault("state_db", filepath.Join(dir, "state.db"))
	viper.SetDefault("stream_transport", defaultConfig.StreamTransport)
	viper.SetDefault("request_timeout", defaultConfig.RequestTimeout)
	viper.SetDefault("refresh_timeout", defaultConfig.RefreshTimeout)
	viper.SetDefault("create_conversation_timeout", defaultConfig.CreateConversationTimeout)
	viper.SetDefault("title_timeout", defaultConfig.TitleTimeout)
	viper.SetDefault("upload_concurrency", defaultConfig.UploadConcurrency)
	viper.SetDefault("ws_max_reconnects", defaultConfig.WSMaxReconnects)
	viper.SetDefault("log_level", defaultConfig.LogLevel)
	viper.SetDefault("log_format", defaultConfig.LogFormat)

	// Bind environment variables
	viper.BindEnv("base_url", "CHATC_BASE_URL")
	viper.BindEnv("state_db", "CHATC_STATE_DB")
	viper.BindEnv("stream_transport", "CHATC_STREAM_TRANSPORT")
	viper.BindEnv("log_level", "CHATC_LOG_LEVEL")
	viper.BindEnv("log_format", "CHATC_LOG_FORMAT")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else {
		// Load system-wide config first (lower priority)
		for _, path := range []string{"/etc/chatc", "/usr/local/etc/chatc"} {
			viper.AddConfigPath(path)
		}
		viper.SetConfigType("toml")
		viper.SetConfigName("config")

		systemConfigLoaded := false
		if err := viper.ReadInConfig(); err == nil {
			systemConfigLoaded = true
			if verbose {
				fmt.Fprintln(os.Stderr, "Loaded system-wide config:", viper.ConfigFileUsed())
			}
		}

		// Load user config (higher priority) - merge with system config
		viper.AddConfigPath(dir)
		if systemConfigLoaded {
			if err := viper.MergeInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					fmt.Fprintf(os.Stderr, "Error merging user config file: %v\n", err)
				}
			} else if verbose {
				fmt.Fprintln(os.Stderr, "Merged user config:", viper.ConfigFileUsed())
			}
		} else {
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
				}
			}
		}
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		fmt.Fprintln(os.Stderr, "  CHATC_BASE_URL:", viper.GetString("base_url"))
		fmt.Fprintln(os.Stderr, "  CHATC_STREAM_TRANSPORT:", viper.GetString("stream_transport"))
	}
}

// newLogger builds the process logger from the configured level and format.
// --verbose forces debug level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
