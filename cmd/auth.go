package cmd

import (
	"fmt"
	"strings"

	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/store"
	"github.com/spf13/cobra"
)

var (
	loginEmail       string
	loginPassword    string
	registerUsername string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the chat backend",
	Long: `Log in with your email and password. The issued credential is stored in the
state database and refreshed automatically when it expires.

Logging in clears the current conversation selection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		email := loginEmail
		if email == "" {
			if email, err = prompt("Email: "); err != nil {
				return err
			}
		}
		password := loginPassword
		if password == "" {
			if password, err = promptPassword("Password: "); err != nil {
				return err
			}
		}

		if err := a.svc.Users.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("login failed: %s", apierr.UserMessage(err))
		}
		if err := a.setCurrentConversation(cmd.Context(), 0); err != nil {
			a.logger.Warn("clearing current conversation failed", "error", err)
		}
		fmt.Println("Logged in.")
		return nil
	},
}

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long:  `Create an account and log in with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		email := loginEmail
		if email == "" {
			if email, err = prompt("Email: "); err != nil {
				return err
			}
		}
		username := registerUsername
		if username == "" {
			if username, err = prompt("Username: "); err != nil {
				return err
			}
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		confirmation, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}

		if err := a.svc.Users.Register(cmd.Context(), email, username, password, confirmation); err != nil {
			return fmt.Errorf("registration failed: %s", apierr.UserMessage(err))
		}
		if err := a.setCurrentConversation(cmd.Context(), 0); err != nil {
			a.logger.Warn("clearing current conversation failed", "error", err)
		}
		fmt.Printf("Registered and logged in as %s.\n", username)
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.Users.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		user, err := a.svc.Users.Me(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching profile: %s", apierr.UserMessage(err))
		}
		fmt.Printf("Username: %s\n", user.Username)
		fmt.Printf("Email: %s\n", user.Email)
		if len(user.Groups) > 0 {
			fmt.Printf("Groups: %s\n", strings.Join(user.Groups, ", "))
		}

		if id := a.currentConversation(cmd.Context()); id != 0 {
			fmt.Printf("Current conversation: %d\n", id)
		}
		if id, ok, _ := store.PreferenceID(cmd.Context(), a.repo, store.KeySelectedConfig); ok {
			fmt.Printf("Selected configuration: %d\n", id)
		}
		return nil
	},
}

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update your account",
	Long: `Update the username, email or password of the logged-in account.
Changing the email or password issues a new credential.`,
}

var profileUsernameCmd = &cobra.Command{
	Use:   "username <name>",
	Short: "Change your username",
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
		if err := a.svc.Users.UpdateUsername(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("updating username: %s", apierr.UserMessage(err))
		}
		fmt.Println("Username updated.")
		return nil
	},
}

var profileEmailCmd = &cobra.Command{
	Use:   "email <address>",
	Short: "Change your email address",
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
		if err := a.svc.Users.UpdateEmail(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("updating email: %s", apierr.UserMessage(err))
		}
		fmt.Println("Email updated.")
		return nil
	},
}

var profilePasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		password, err := promptPassword("New password: ")
		if err != nil {
			return err
		}
		confirmation, err := promptPassword("Confirm new password: ")
		if err != nil {
			return err
		}
		if err := a.svc.Users.UpdatePassword(cmd.Context(), password, confirmation); err != nil {
			return fmt.Errorf("updating password: %s", apierr.UserMessage(err))
		}
		fmt.Println("Password updated.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileUsernameCmd)
	profileCmd.AddCommand(profileEmailCmd)
	profileCmd.AddCommand(profilePasswordCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (prompted when omitted)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prompted when omitted)")
	registerCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (prompted when omitted)")
	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "Username (prompted when omitted)")
}
