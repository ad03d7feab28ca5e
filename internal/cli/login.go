package cli

import (
	"fmt"
	"os"
	"strings"

	"imapsh/internal/config"
	"imapsh/internal/secrets"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var (
		host     string
		port     int
		useTLS   bool
		startTLS bool
		insecure bool
		username string
		folder   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store server settings and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("host") {
				cfg.IMAP.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.IMAP.Port = port
			}
			if cmd.Flags().Changed("tls") {
				cfg.IMAP.TLS = useTLS
			}
			if cmd.Flags().Changed("starttls") {
				cfg.IMAP.StartTLS = startTLS
			}
			if cmd.Flags().Changed("insecure") {
				cfg.IMAP.InsecureSkipVerify = insecure
			}
			if cmd.Flags().Changed("username") {
				cfg.Auth.Username = username
			}
			if cmd.Flags().Changed("folder") {
				cfg.Defaults.Folder = folder
			}

			if cfg.IMAP.Host == "" {
				return fmt.Errorf("--host is required")
			}
			if cfg.Auth.Username == "" {
				return fmt.Errorf("--username is required")
			}

			password, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			if err := secrets.SetPassword(cfg.Auth.Username, password); err != nil {
				return err
			}

			// The password lives in the keyring, never in the file.
			cfg.Auth.Password = ""
			path, err := config.Save(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "IMAP host")
	cmd.Flags().IntVar(&port, "port", 0, "IMAP port")
	cmd.Flags().BoolVar(&useTLS, "tls", true, "Use implicit TLS")
	cmd.Flags().BoolVar(&startTLS, "starttls", false, "Use STARTTLS")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS verification")
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder selected at startup")

	return cmd
}

func promptPassword(cmd *cobra.Command) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no TTY for password prompt; set %s_AUTH_PASSWORD instead", strings.ToUpper(config.AppName))
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return password, nil
}
