package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/longkey1/chatc/internal/chatc/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFields = "configfile, base_url, state_db, stream_transport, request_timeout, refresh_timeout, create_conversation_timeout, title_timeout, upload_concurrency, ws_max_reconnects, log_level, log_format, token"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.
Available fields: ` + configFields + `

Examples:
  chatc config                    # Show all configuration
  chatc config base_url           # Show only the backend URL
  chatc config stream_transport   # Show only the stream transport
  chatc config token              # Show the stored access token (masked)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if len(args) > 0 {
			field := strings.ToLower(args[0])
			switch field {
			case "configfile":
				fmt.Println(viper.ConfigFileUsed())
			case "base_url", "baseurl":
				fmt.Println(cfg.BaseURL)
			case "state_db", "statedb":
				fmt.Println(cfg.StateDB)
			case "stream_transport", "transport":
				fmt.Println(cfg.StreamTransport)
			case "request_timeout":
				fmt.Println(cfg.RequestTimeout)
			case "refresh_timeout":
				fmt.Println(cfg.RefreshTimeout)
			case "create_conversation_timeout":
				fmt.Println(cfg.CreateConversationTimeout)
			case "title_timeout":
				fmt.Println(cfg.TitleTimeout)
			case "upload_concurrency":
				fmt.Println(cfg.UploadConcurrency)
			case "ws_max_reconnects":
				fmt.Println(cfg.WSMaxReconnects)
			case "log_level":
				fmt.Println(cfg.LogLevel)
			case "log_format":
				fmt.Println(cfg.LogFormat)
			case "token":
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()
				fmt.Println(maskToken(a.creds.AccessToken()))
			default:
				fmt.Fprintf(os.Stderr, "Available fields: %s\n", configFields)
				return fmt.Errorf("unknown field: %s", args[0])
			}
			return nil
		}

		// Display all configuration values
		fmt.Printf("ConfigFile: %s\n", viper.ConfigFileUsed())
		fmt.Printf("BaseURL: %s\n", cfg.BaseURL)
		fmt.Printf("StateDB: %s\n", cfg.StateDB)
		fmt.Printf("StreamTransport: %s\n", cfg.StreamTransport)
		fmt.Printf("RequestTimeout: %s\n", cfg.RequestTimeout)
		fmt.Printf("RefreshTimeout: %s\n", cfg.RefreshTimeout)
		fmt.Printf("CreateConversationTimeout: %s\n", cfg.CreateConversationTimeout)
		fmt.Printf("TitleTimeout: %s\n", cfg.TitleTimeout)
		fmt.Printf("UploadConcurrency: %d\n", cfg.UploadConcurrency)
		fmt.Printf("WSMaxReconnects: %d\n", cfg.WSMaxReconnects)
		fmt.Printf("LogLevel: %s\n", cfg.LogLevel)
		fmt.Printf("LogFormat: %s\n", cfg.LogFormat)
		return nil
	},
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if token == "" {
		return "(not logged in)"
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
