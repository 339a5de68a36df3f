package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/spf13/cobra"
)

// conversationsCmd represents the conversations command
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `Manage conversations including listing, viewing, renaming and deleting them.

Conversations are stored on the backend. The current conversation is the one
'chatc chat' continues; it is remembered in the local state database.`,
}

// conversationsListCmd represents the conversations list command
var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Long:  `List all conversations sorted by most recently updated. The current conversation is marked with '*'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		conversations, err := a.svc.Conversations.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing conversations: %s", apierr.UserMessage(err))
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			fmt.Println("\nStart one with:")
			fmt.Println("  chatc chat \"your message\"")
			return nil
		}

		current := a.currentConversation(cmd.Context())

		// Print table header
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, " \tID\tUPDATED\tCONFIG\tTITLE")
		fmt.Fprintln(w, " \t--\t-------\t------\t-----")

		for _, conv := range chatc.SortConversations(conversations) {
			mark := " "
			if conv.ConversationID == current {
				mark = "*"
			}
			updated := "-"
			if t := conv.UpdatedAt(); !t.IsZero() {
				updated = t.Local().Format("2006-01-02 15:04")
			}
			configID := "-"
			if conv.ModelConfigID != nil {
				configID = fmt.Sprint(*conv.ModelConfigID)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", mark, conv.ConversationID, updated, configID, conv.DisplayTitle())
		}
		w.Flush()

		fmt.Println("\nUse 'chatc conversations show <id>' to view a conversation.")
		return nil
	},
}

// conversationsShowCmd represents the conversations show command
var conversationsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show conversation details and history",
	Long: `Show a conversation and all of its messages.

The ID can be a conversation ID or "latest" for the most recently updated
conversation. Without an ID the current conversation is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		conv, err := resolveConversation(cmd.Context(), a, args)
		if err != nil {
			return err
		}

		messages, err := a.svc.Chat.Messages(cmd.Context(), conv.ConversationID)
		if err != nil {
			return fmt.Errorf("fetching messages: %s", apierr.UserMessage(err))
		}

		fmt.Printf("Conversation: %d\n", conv.ConversationID)
		fmt.Printf("Title: %s\n", conv.DisplayTitle())
		if t := conv.UpdatedAt(); !t.IsZero() {
			fmt.Printf("Updated: %s\n", t.Local().Format("2006-01-02 15:04:05"))
		}
		if conv.ModelConfigID != nil {
			fmt.Printf("Configuration: %d\n", *conv.ModelConfigID)
		}
		fmt.Printf("Messages: %d\n", len(messages))
		fmt.Println()

		if len(messages) == 0 {
			fmt.Println("No messages in this conversation.")
			return nil
		}

		fmt.Println("Message History:")
		fmt.Println("----------------")
		for i, msg := range messages {
			printTurn(i+1, msg)
		}

		fmt.Printf("\nContinue this conversation with:\n  chatc conversations use %d && chatc chat \"your message\"\n", conv.ConversationID)
		return nil
	},
}

// conversationsNewCmd represents the conversations new command
var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation",
	Long:  `Clear the current conversation. The next 'chatc chat' creates a new one.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.setCurrentConversation(cmd.Context(), 0); err != nil {
			return fmt.Errorf("clearing current conversation: %w", err)
		}
		fmt.Println("The next message starts a new conversation.")
		return nil
	},
}

// conversationsUseCmd represents the conversations use command
var conversationsUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Select the current conversation",
	Long:  `Select the conversation 'chatc chat' continues. The ID can be "latest".`,
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

		conv, err := resolveConversation(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		if err := a.setCurrentConversation(cmd.Context(), conv.ConversationID); err != nil {
			return fmt.Errorf("saving current conversation: %w", err)
		}
		fmt.Printf("Current conversation: %d (%s)\n", conv.ConversationID, conv.DisplayTitle())
		return nil
	},
}

// conversationsRenameCmd represents the conversations rename command
var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Long:  `Rename a conversation. The ID can be "latest".`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		conv, err := resolveConversation(cmd.Context(), a, args[:1])
		if err != nil {
			return err
		}
		title := strings.Join(args[1:], " ")
		if err := a.svc.Conversations.UpdateTitle(cmd.Context(), conv.ConversationID, title); err != nil {
			return fmt.Errorf("renaming conversation: %s", apierr.UserMessage(err))
		}

		fmt.Printf("Conversation %d renamed to %q.\n", conv.ConversationID, title)
		return nil
	},
}

// conversationsDeleteCmd represents the conversations delete command
var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete conversations",
	Long: `Delete one or more conversations permanently.

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

		conversations, err := a.svc.Conversations.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing conversations: %s", apierr.UserMessage(err))
		}
		var ids []int64
		for _, ref := range args {
			conv, err := chatc.FindConversation(conversations, ref)
			if err != nil {
				return err
			}
			ids = append(ids, conv.ConversationID)
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Are you sure you want to delete %d conversation(s)?", len(ids))) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		if err := a.svc.Conversations.Delete(cmd.Context(), ids...); err != nil {
			return fmt.Errorf("deleting conversations: %s", apierr.UserMessage(err))
		}

		current := a.currentConversation(cmd.Context())
		for _, id := range ids {
			if id == current {
				if err := a.setCurrentConversation(cmd.Context(), 0); err != nil {
					a.logger.Warn("clearing current conversation failed", "error", err)
				}
			}
		}
		fmt.Printf("Deleted %d conversation(s).\n", len(ids))
		return nil
	},
}

// resolveConversation finds the conversation named by args[0], or the
// current conversation when args is empty.
func resolveConversation(ctx context.Context, a *app, args []string) (*chatc.Conversation, error) {
	conversations, err := a.svc.Conversations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %s", apierr.UserMessage(err))
	}
	if len(args) == 0 {
		current := a.currentConversation(ctx)
		if current == 0 {
			return nil, fmt.Errorf("no current conversation. Pass an ID or run 'chatc conversations use <id>'")
		}
		return chatc.FindConversation(conversations, fmt.Sprint(current))
	}
	return chatc.FindConversation(conversations, args[0])
}

// printTurn prints one message of a history listing.
func printTurn(n int, msg chatc.Turn) {
	roleLabel := "You"
	if msg.Role == chatc.RoleAssistant {
		roleLabel = "Assistant"
	}
	meta := ""
	if msg.Timestamp != nil {
		meta = " (" + *msg.Timestamp + ")"
	}

	fmt.Printf("\n[%d] %s%s:\n%s\n", n, roleLabel, meta, msg.Content.PlainText())
	for _, img := range msg.Content.Images() {
		if chatc.IsDataURL(img) {
			img = "(inline image)"
		}
		fmt.Printf("  [image] %s\n", img)
	}
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsUseCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)

	conversationsDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without confirmation")
}
