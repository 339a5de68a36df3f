package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/longkey1/chatc/internal/api"
	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/store"
	"github.com/spf13/cobra"
)

var (
	configName    string
	configBaseURL string
	configModel   string
	configAPIKey  string
	configParams  []string
)

// configsCmd represents the configs command
var configsCmd = &cobra.Command{
	Use:     "configs",
	Aliases: []string{"models"},
	Short:   "Manage model configurations",
	Long: `Manage the model configurations stored on the backend.

A model configuration names an OpenAI-compatible endpoint, a model and an
API key. Every chat turn runs against the selected configuration.`,
}

// configsListCmd represents the configs list command
var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model configurations",
	Long:  `List all model configurations. The selected configuration is marked with '*'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		configs, err := a.svc.ModelConfigs.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
		}
		if len(configs) == 0 {
			fmt.Println("No model configurations found.")
			fmt.Println("\nAdd one with:")
			fmt.Println("  chatc configs add --base-url https://api.openai.com/v1 --model gpt-4o --api-key sk-...")
			return nil
		}

		selected := a.selectedConfig(cmd.Context())
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tNAME\tMODEL\tBASE URL\tAPI KEY")
		fmt.Fprintln(w, " \t--\t----\t-----\t--------\t-------")
		for _, c := range configs {
			mark := " "
			if c.ConfigID == selected {
				mark = "*"
			}
			key := deref(c.APIKey)
			if key != "-" {
				key = maskToken(key)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", mark, c.ConfigID, deref(c.Name), deref(c.ModelName), c.BaseURL, key)
		}
		w.Flush()
		return nil
	},
}

// configsAddCmd represents the configs add command
var configsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a model configuration",
	Long: `Add a model configuration.

Parameters are passed as key=value pairs; values are parsed as JSON when
possible, so --param temperature=0.2 sends a number.

Example:
  chatc configs add --name fast --base-url https://api.openai.com/v1 \
    --model gpt-4o-mini --api-key sk-... --param temperature=0.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		ctx := cmd.Context()

		params, err := chatc.ParseParams(configParams)
		if err != nil {
			return err
		}

		configs, err := a.svc.ModelConfigs.List(ctx)
		if err != nil {
			return fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
		}
		quota, err := a.svc.ModelConfigs.CanCreate(ctx, len(configs))
		if err != nil {
			return fmt.Errorf("checking quota: %s", apierr.UserMessage(err))
		}
		if !quota.CanCreate {
			return fmt.Errorf("configuration limit reached (%d). Delete one with 'chatc configs delete <id>'", quota.Limit)
		}

		in := api.ModelConfigInput{
			Name:      optional(configName),
			BaseURL:   configBaseURL,
			ModelName: optional(configModel),
			APIKey:    optional(configAPIKey),
			Params:    params,
		}
		created, err := a.svc.ModelConfigs.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("adding configuration: %s", apierr.UserMessage(err))
		}

		fmt.Printf("Added configuration %d (%s).\n", created.ConfigID, created.DisplayName())
		if len(configs) == 0 || a.selectedConfig(ctx) == 0 {
			if err := store.SetPreferenceID(ctx, a.repo, store.KeySelectedConfig, created.ConfigID); err != nil {
				return fmt.Errorf("saving selected configuration: %w", err)
			}
			fmt.Println("It is now the selected configuration.")
		}
		return nil
	},
}

// configsUpdateCmd represents the configs update command
var configsUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Update a model configuration",
	Long:  `Update a model configuration. Only the flags given are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		ctx := cmd.Context()

		current, err := findConfig(ctx, a, args[0])
		if err != nil {
			return err
		}

		in := api.ModelConfigInput{
			Name:      current.Name,
			BaseURL:   current.BaseURL,
			ModelName: current.ModelName,
			APIKey:    current.APIKey,
			Params:    current.Params,
		}
		flags := cmd.Flags()
		if flags.Changed("name") {
			in.Name = optional(configName)
		}
		if flags.Changed("base-url") {
			in.BaseURL = configBaseURL
		}
		if flags.Changed("model") {
			in.ModelName = optional(configModel)
		}
		if flags.Changed("api-key") {
			in.APIKey = optional(configAPIKey)
		}
		if flags.Changed("param") {
			params, err := chatc.ParseParams(configParams)
			if err != nil {
				return err
			}
			in.Params = params
		}

		if err := a.svc.ModelConfigs.Update(ctx, current.ConfigID, in); err != nil {
			return fmt.Errorf("updating configuration: %s", apierr.UserMessage(err))
		}
		fmt.Printf("Updated configuration %d.\n", current.ConfigID)
		return nil
	},
}

// configsDeleteCmd represents the configs delete command
var configsDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>...",
	Short: "Delete model configurations",
	Long: `Delete one or more model configurations permanently.

Warning: This action cannot be undone.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		ctx := cmd.Context()

		configs, err := a.svc.ModelConfigs.List(ctx)
		if err != nil {
			return fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
		}
		deleted := make(map[int64]bool)
		var ids []int64
		for _, ref := range args {
			c, err := chatc.FindConfig(configs, ref)
			if err != nil {
				return err
			}
			if !deleted[c.ConfigID] {
				deleted[c.ConfigID] = true
				ids = append(ids, c.ConfigID)
			}
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Are you sure you want to delete %d configuration(s)?", len(ids))) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		if err := a.svc.ModelConfigs.Delete(ctx, ids...); err != nil {
			return fmt.Errorf("deleting configurations: %s", apierr.UserMessage(err))
		}
		fmt.Printf("Deleted %d configuration(s).\n", len(ids))

		if !deleted[a.selectedConfig(ctx)] {
			return nil
		}
		// The selection moves to the first remaining configuration.
		for _, c := range configs {
			if !deleted[c.ConfigID] {
				if err := store.SetPreferenceID(ctx, a.repo, store.KeySelectedConfig, c.ConfigID); err != nil {
					return fmt.Errorf("saving selected configuration: %w", err)
				}
				fmt.Printf("Selected configuration %d (%s).\n", c.ConfigID, c.DisplayName())
				return nil
			}
		}
		return a.repo.DeletePreference(ctx, store.KeySelectedConfig)
	},
}

// configsUseCmd represents the configs use command
var configsUseCmd = &cobra.Command{
	Use:   "use <id|name>",
	Short: "Select the model configuration",
	Long: `Select the model configuration used for chatting. The current
conversation is switched to it as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		ctx := cmd.Context()

		c, err := findConfig(ctx, a, args[0])
		if err != nil {
			return err
		}
		if err := store.SetPreferenceID(ctx, a.repo, store.KeySelectedConfig, c.ConfigID); err != nil {
			return fmt.Errorf("saving selected configuration: %w", err)
		}
		if conv := a.currentConversation(ctx); conv != 0 {
			if err := a.svc.Conversations.UpdateModelConfig(ctx, conv, c.ConfigID); err != nil {
				return fmt.Errorf("updating conversation %d: %s", conv, apierr.UserMessage(err))
			}
		}
		fmt.Printf("Selected configuration %d (%s).\n", c.ConfigID, c.DisplayName())
		return nil
	},
}

// configsQuotaCmd represents the configs quota command
var configsQuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show how many configurations can be created",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		configs, err := a.svc.ModelConfigs.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
		}
		quota, err := a.svc.ModelConfigs.CanCreate(cmd.Context(), len(configs))
		if err != nil {
			return fmt.Errorf("checking quota: %s", apierr.UserMessage(err))
		}
		fmt.Printf("Configurations: %d of %d\n", len(configs), quota.Limit)
		if quota.CanCreate {
			fmt.Println("You can add another configuration.")
		} else {
			fmt.Println("Limit reached.")
		}
		return nil
	},
}

func findConfig(ctx context.Context, a *app, ref string) (*chatc.ModelConfig, error) {
	configs, err := a.svc.ModelConfigs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
	}
	return chatc.FindConfig(configs, ref)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func init() {
	rootCmd.AddCommand(configsCmd)
	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsAddCmd)
	configsCmd.AddCommand(configsUpdateCmd)
	configsCmd.AddCommand(configsDeleteCmd)
	configsCmd.AddCommand(configsUseCmd)
	configsCmd.AddCommand(configsQuotaCmd)

	for _, c := range []*cobra.Command{configsAddCmd, configsUpdateCmd} {
		c.Flags().StringVar(&configName, "name", "", "Display name")
		c.Flags().StringVar(&configBaseURL, "base-url", "", "OpenAI-compatible endpoint, e.g. https://api.openai.com/v1")
		c.Flags().StringVarP(&configModel, "model", "m", "", "Model name")
		c.Flags().StringVar(&configAPIKey, "api-key", "", "API key for the endpoint")
		c.Flags().StringArrayVar(&configParams, "param", nil, "Model parameter as key=value (repeatable)")
	}
	configsAddCmd.MarkFlagRequired("base-url")
	configsDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without confirmation")
}
