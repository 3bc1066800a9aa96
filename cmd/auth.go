// Package cmd provides the command groups of the redora CLI.
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/redoraai/redora-cli/config"
	"github.com/redoraai/redora-cli/credentials"
)

// PassphraseEnv unlocks a passphrase-encrypted token file without prompting.
const PassphraseEnv = "REDORA_PASSPHRASE"

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	// OpenStore returns the token store. A non-empty passphrase selects the
	// passphrase-encrypted file store.
	OpenStore func(passphrase string) (credentials.TokenStore, error)

	// ReadSecret prompts for a value without echo.
	ReadSecret func(prompt string) (string, error)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		OpenStore:  OpenTokenStore,
		ReadSecret: readSecret,
	}
}

// OpenTokenStore opens the default token store, or the passphrase file store
// when passphrase is set.
func OpenTokenStore(passphrase string) (credentials.TokenStore, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return credentials.PassphraseStore(dir, passphrase)
	}
	return credentials.DefaultStore(dir)
}

// ResolveToken returns the API token for outgoing requests. An unconfigured
// store yields an empty token and no error.
func ResolveToken() (string, error) {
	if token := os.Getenv(credentials.TokenEnv); token != "" {
		return token, nil
	}
	store, err := OpenTokenStore(os.Getenv(PassphraseEnv))
	if err != nil {
		return "", nil
	}
	token, err := store.Get()
	if errors.Is(err, credentials.ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading API token from %s: %w", store.Description(), err)
	}
	return token, nil
}

// readSecret reads without echo from a terminal, or one line from piped stdin.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the RedoraAI API token",
		Long: `Store, inspect and remove the API token the CLI sends to RedoraAI.

The token is kept in the system keyring (macOS Keychain, Windows Credential
Manager, Secret Service on Linux). Where no keyring is available it is written
encrypted to ~/.redora/credentials.yaml, keyed by REDORA_ENCRYPTION_KEY or a
passphrase.

REDORA_API_TOKEN, when set, is used instead of anything stored.`,
	}

	cmd.AddCommand(newAuthLoginCommand(deps))
	cmd.AddCommand(newAuthLogoutCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))

	return cmd
}

func (d *AuthCommandDeps) open(usePassphrase bool) (credentials.TokenStore, error) {
	passphrase := os.Getenv(PassphraseEnv)
	if usePassphrase && passphrase == "" {
		var err error
		passphrase, err = d.ReadSecret("Passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		if passphrase == "" {
			return nil, errors.New("passphrase must not be empty")
		}
	}
	store, err := d.OpenStore(passphrase)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	return store, nil
}

func newAuthLoginCommand(deps *AuthCommandDeps) *cobra.Command {
	var (
		token          string
		usePassphrase  bool
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token",
		Example: `  # Prompt for the token
  redora auth login

  # Pipe it in
  echo "$TOKEN" | redora auth login

  # No keyring: encrypt with a passphrase
  redora auth login --passphrase`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if nonInteractive {
					return errors.New("no token provided and --non-interactive set")
				}
				var err error
				token, err = deps.ReadSecret("API token: ")
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token must not be empty")
			}

			store, err := deps.open(usePassphrase)
			if err != nil {
				return err
			}
			if err := store.Set(token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Token saved.")
			fmt.Fprintf(out, "  Store: %s\n", store.Description())
			fmt.Fprintf(out, "  Token: %s\n", credentials.MaskToken(token))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token (prompted for when omitted)")
	cmd.Flags().BoolVar(&usePassphrase, "passphrase", false, "Encrypt the token file with a passphrase instead of the keyring")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Fail instead of prompting")

	return cmd
}

func newAuthLogoutCommand(deps *AuthCommandDeps) *cobra.Command {
	var usePassphrase bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Long: `Remove the stored API token. REDORA_API_TOKEN is not affected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deps.open(usePassphrase)
			if err != nil {
				return err
			}
			if err := store.Delete(); err != nil {
				return fmt.Errorf("removing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token removed.")
			if os.Getenv(credentials.TokenEnv) != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Note: %s is still set in your environment.\n", credentials.TokenEnv)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&usePassphrase, "passphrase", false, "Remove the passphrase-encrypted token file")

	return cmd
}

// AuthStatus is the json/yaml shape of `auth status`.
type AuthStatus struct {
	LoggedIn bool   `json:"logged_in" yaml:"logged_in"`
	Source   string `json:"source" yaml:"source"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
}

func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	var (
		usePassphrase bool
		output        string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the API token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deps.open(usePassphrase)
			if err != nil {
				return err
			}

			status := AuthStatus{Source: store.Description()}
			token, err := store.Get()
			switch {
			case err == nil:
				status.LoggedIn = true
				status.Token = credentials.MaskToken(token)
			case !errors.Is(err, credentials.ErrNoToken):
				return fmt.Errorf("reading token: %w", err)
			}

			out := cmd.OutOrStdout()
			switch config.OutputFormat(output) {
			case config.OutputFormatJSON:
				return writeJSON(out, status)
			case config.OutputFormatYAML:
				return writeYAML(out, status)
			}
			if !status.LoggedIn {
				fmt.Fprintln(out, "Not logged in.")
				fmt.Fprintf(out, "  Store: %s\n", status.Source)
				fmt.Fprintln(out, "Run 'redora auth login' to store a token.")
				return nil
			}
			fmt.Fprintln(out, "Logged in.")
			fmt.Fprintf(out, "  Source: %s\n", status.Source)
			fmt.Fprintf(out, "  Token:  %s\n", status.Token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&usePassphrase, "passphrase", false, "Read the passphrase-encrypted token file")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")

	return cmd
}
