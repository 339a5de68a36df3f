/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/chat"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/spf13/cobra"
)

var (
	useEditor       bool
	conversationRef string
	newConversation bool
	configRef       string
	imageFlags      []string
	interactive     bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message and stream the reply",
	Long: `Send a message to the current conversation and stream the reply.

If no conversation is selected, a new one is created and titled from the
first exchange. Press Ctrl+C while a reply is streaming to stop it.

If no message is provided as an argument, it reads from stdin.
If --editor flag is set, it opens the default editor (from EDITOR environment variable) to compose the message.
Use --interactive for a multi-turn session in the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if conversationRef != "" && newConversation {
			return fmt.Errorf("cannot specify both --conversation and --new")
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		images, err := readImages(imageFlags)
		if err != nil {
			return err
		}

		o, err := openOrchestrator(cmd.Context(), a)
		if err != nil {
			return err
		}
		defer o.Wait()

		o.OnTitle(func(id int64, title string) {
			fmt.Fprintf(os.Stderr, "Conversation %d titled %q\n", id, title)
		})
		stop := cancelOnInterrupt(o)
		defer stop()

		if interactive {
			return runInteractiveMode(cmd.Context(), a, o, images)
		}

		// Get message from arguments, editor, or stdin
		var message string
		if useEditor {
			message, err = getMessageFromEditor()
			if err != nil {
				return fmt.Errorf("getting message from editor: %w", err)
			}
		} else if len(args) > 0 {
			message = strings.Join(args, " ")
		} else {
			input, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading from stdin: %w", err)
			}
			message = strings.TrimSpace(string(input))
		}

		state, err := sendTurn(cmd.Context(), o, func(ctx context.Context) (chat.State, error) {
			return o.Send(ctx, chat.Input{Text: message, Images: images})
		})
		if err != nil {
			return err
		}
		if state == chat.Completed && verbose {
			fmt.Fprintf(os.Stderr, "\nContinue with:\n  chatc chat \"your message\"\n")
		}
		return nil
	},
}

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Regenerate the last reply",
	Long: `Resend the current conversation and stream a new reply.

The last assistant reply is dropped before resending, so a failed or
unsatisfying answer can be regenerated.`,
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

		current := a.currentConversation(cmd.Context())
		if current == 0 {
			return fmt.Errorf("no current conversation to retry")
		}
		o, err := a.newOrchestrator(cmd.Context(), current)
		if err != nil {
			return fmt.Errorf("%s", apierr.UserMessage(err))
		}
		stop := cancelOnInterrupt(o)
		defer stop()

		_, err = sendTurn(cmd.Context(), o, o.Retry)
		return err
	},
}

// openOrchestrator resolves the conversation and configuration flags.
func openOrchestrator(ctx context.Context, a *app) (*chat.Orchestrator, error) {
	var conversationID int64
	switch {
	case newConversation:
		if err := a.setCurrentConversation(ctx, 0); err != nil {
			return nil, fmt.Errorf("clearing current conversation: %w", err)
		}
	case conversationRef != "":
		conversations, err := a.svc.Conversations.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %s", apierr.UserMessage(err))
		}
		conv, err := chatc.FindConversation(conversations, conversationRef)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ConversationID
		if err := a.setCurrentConversation(ctx, conversationID); err != nil {
			return nil, fmt.Errorf("saving current conversation: %w", err)
		}
	default:
		conversationID = a.currentConversation(ctx)
	}

	o, err := a.newOrchestrator(ctx, conversationID)
	if err != nil && conversationRef == "" && apierr.IsStatus(err, http.StatusNotFound) {
		// The remembered conversation was deleted elsewhere.
		a.logger.Info("current conversation no longer exists", "conversation_id", conversationID)
		if err := a.setCurrentConversation(ctx, 0); err != nil {
			a.logger.Warn("clearing current conversation failed", "error", err)
		}
		o, err = a.newOrchestrator(ctx, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("%s", apierr.UserMessage(err))
	}

	if configRef != "" {
		configs, err := a.svc.ModelConfigs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing configurations: %s", apierr.UserMessage(err))
		}
		cfg, err := chatc.FindConfig(configs, configRef)
		if err != nil {
			return nil, err
		}
		o.SetConfigs(configs)
		if err := o.SelectConfig(ctx, *cfg); err != nil {
			return nil, fmt.Errorf("selecting configuration: %s", apierr.UserMessage(err))
		}
	}
	return o, nil
}

// sendTurn runs one turn while streaming the reply to stdout.
func sendTurn(ctx context.Context, o *chat.Orchestrator, run func(context.Context) (chat.State, error)) (chat.State, error) {
	p := newReplyPrinter(os.Stdout)
	unsubscribe := p.attach(o.Transcript())
	defer unsubscribe()

	state, err := run(ctx)
	p.stopSpinner()

	switch {
	case errors.Is(err, chat.ErrNoModelConfig):
		return state, fmt.Errorf("no model configuration found. Add one with 'chatc configs add'")
	case errors.Is(err, chat.ErrConversationCreateTimeout):
		return state, fmt.Errorf("creating the conversation timed out, please try again")
	case state == chat.Aborted:
		p.end()
		fmt.Fprintln(os.Stderr, "[stopped]")
		return state, nil
	case state == chat.Failed:
		p.end()
		if msg := o.Transcript().Snapshot().ErrorMessage; msg != "" {
			return state, errors.New(msg)
		}
		return state, fmt.Errorf("%s", apierr.UserMessage(err))
	case err != nil:
		return state, err
	}
	p.end()
	return state, nil
}

// replyPrinter writes the streamed reply as it grows.
type replyPrinter struct {
	w io.Writer

	mu      sync.Mutex
	printed int
	active  bool
	done    chan struct{}
	once    sync.Once
}

func newReplyPrinter(w io.Writer) *replyPrinter {
	p := &replyPrinter{w: w, done: make(chan struct{})}
	go showSpinner(p.done)
	return p
}

// attach subscribes to t. The returned func stops printing.
func (p *replyPrinter) attach(t *chat.Transcript) func() {
	t.OnChange(p.update)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.w = io.Discard
	}
}

func (p *replyPrinter) update(s chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(s.Pending) < p.printed {
		p.printed = 0
	}
	if len(s.Pending) == p.printed {
		return
	}
	p.stopSpinner()
	if !p.active && p.w != io.Discard {
		p.active = true
		fmt.Fprint(p.w, "\nAssistant> ")
	}
	fmt.Fprint(p.w, s.Pending[p.printed:])
	p.printed = len(s.Pending)
}

func (p *replyPrinter) stopSpinner() {
	p.once.Do(func() {
		p.done <- struct{}{}
		close(p.done)
	})
}

// end terminates the reply line.
func (p *replyPrinter) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		fmt.Fprintln(p.w)
		p.active = false
	}
	p.printed = 0
}

// showSpinner displays a spinner animation while waiting for response
func showSpinner(done chan struct{}) {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			// Clear the spinner line
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		default:
			fmt.Fprintf(os.Stderr, "\r%s Waiting for response...", spinners[i])
			i = (i + 1) % len(spinners)
			time.Sleep(80 * time.Millisecond)
		}
	}
}

// cancelOnInterrupt makes Ctrl+C abort the turn in flight. Outside a turn
// the interrupt exits the program.
func cancelOnInterrupt(o *chat.Orchestrator) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				if o.State().Active() {
					o.Cancel()
					continue
				}
				fmt.Fprintln(os.Stderr, "\nGoodbye!")
				os.Exit(130)
			case <-quit:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(quit)
	}
}

// runInteractiveMode starts an interactive chat session
func runInteractiveMode(ctx context.Context, a *app, o *chat.Orchestrator, images []string) error {
	fmt.Fprintf(os.Stderr, "\n=== Interactive Chat ===\n")
	printChatInfo(o)
	fmt.Fprintf(os.Stderr, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n")
	fmt.Fprintf(os.Stderr, "========================\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprint(os.Stderr, "You> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleSpecialCommand(ctx, a, o, input) {
				continue
			}
			return nil
		}

		_, err := sendTurn(ctx, o, func(ctx context.Context) (chat.State, error) {
			return o.Send(ctx, chat.Input{Text: input, Images: images})
		})
		// Attached images go with the first message only.
		images = nil
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Type '/retry' to try again.")
		}
		fmt.Println()
	}
}

// handleSpecialCommand processes special commands in interactive mode
// Returns true to continue the loop, false to exit
func handleSpecialCommand(ctx context.Context, a *app, o *chat.Orchestrator, command string) bool {
	command = strings.ToLower(strings.TrimSpace(command))

	switch command {
	case "/help", "/h":
		fmt.Fprintln(os.Stderr, "\nAvailable commands:")
		fmt.Fprintln(os.Stderr, "  /help, /h     - Show this help message")
		fmt.Fprintln(os.Stderr, "  /info, /i     - Show conversation information")
		fmt.Fprintln(os.Stderr, "  /retry, /r    - Regenerate the last reply")
		fmt.Fprintln(os.Stderr, "  /new, /n      - Start a new conversation")
		fmt.Fprintln(os.Stderr, "  /exit, /quit  - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "  Ctrl+C        - Stop the reply being streamed")
		fmt.Fprintln(os.Stderr, "  Ctrl+D        - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "")
		return true

	case "/info", "/i":
		fmt.Fprintln(os.Stderr)
		printChatInfo(o)
		fmt.Fprintln(os.Stderr)
		return true

	case "/retry", "/r":
		if _, err := sendTurn(ctx, o, o.Retry); err != nil {
			if errors.Is(err, chat.ErrNothingToRetry) {
				fmt.Fprintln(os.Stderr, "Nothing to retry yet.")
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		fmt.Println()
		return true

	case "/new", "/n":
		if err := o.SetConversation(0, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		if err := a.setCurrentConversation(ctx, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to clear current conversation: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "Started a new conversation.")
		return true

	case "/exit", "/quit", "/q":
		fmt.Fprintln(os.Stderr, "Goodbye!")
		return false

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(os.Stderr, "Type '/help' for available commands")
		return true
	}
}

func printChatInfo(o *chat.Orchestrator) {
	if id := o.ConversationID(); id != 0 {
		fmt.Fprintf(os.Stderr, "Conversation: %d\n", id)
	} else {
		fmt.Fprintln(os.Stderr, "Conversation: (new)")
	}
	if id := o.ConfigID(); id != 0 {
		fmt.Fprintf(os.Stderr, "Configuration: %d\n", id)
	}
	fmt.Fprintf(os.Stderr, "Messages: %d\n", len(o.Transcript().Turns()))
}

// readImages turns image flags into data URLs. Remote URLs are kept as-is.
func readImages(paths []string) ([]string, error) {
	var images []string
	for _, p := range paths {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || chatc.IsDataURL(p) {
			images = append(images, p)
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", p, mime)
		}
		images = append(images, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}

// getMessageFromEditor opens the default editor and returns the edited message
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", fmt.Errorf("EDITOR environment variable is not set")
	}

	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "chatc-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %v", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor: %v", err)
	}

	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited content: %v", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(retryCmd)

	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")
	chatCmd.Flags().StringVarP(&conversationRef, "conversation", "c", "", "Conversation ID, or 'latest' for the most recently updated conversation")
	chatCmd.Flags().BoolVarP(&newConversation, "new", "n", false, "Start a new conversation")
	chatCmd.Flags().StringVar(&configRef, "model-config", "", "Model configuration ID or name to use")
	chatCmd.Flags().StringArrayVar(&imageFlags, "image", nil, "Attach an image file or URL (repeatable)")
	chatCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start an interactive multi-turn session")
}
