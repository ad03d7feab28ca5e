package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"imapsh/internal/config"
	"imapsh/internal/imap"
	"imapsh/internal/message"
	"imapsh/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func runShell(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	client, err := imap.Connect(cfg)
	if err != nil {
		return err
	}
	sess := imap.NewSession(client, cfg)
	defer func() {
		_ = sess.Close()
	}()

	out := cmd.OutOrStdout()
	ctrl := session.New(sess, out, terminalWidth, session.Settings{
		DateFormat: cfg.Defaults.DateFormat,
		PageSize:   cfg.Defaults.PageSize,
		SortKey:    cfg.Defaults.Sort,
	})

	if err := ctrl.Select(cfg.Defaults.Folder); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s as %s, folder %s\n", cfg.IMAP.Host, cfg.Auth.Username, cfg.Defaults.Folder)

	errOut := cmd.ErrOrStderr()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(out, "%s> ", config.AppName)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := dispatch(ctrl, out, line)
		if err != nil {
			// A failed command leaves listing, cursor and cache as they
			// were; the user just gets the prompt back.
			fmt.Fprintln(errOut, err)
			continue
		}
		if quit {
			break
		}
	}
	return scanner.Err()
}

// dispatch runs one shell command. The command set is closed and resolved
// here; argument-count validation lives in this layer, semantics live in the
// session controller.
func dispatch(ctrl *session.Controller, out io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "search":
		return false, ctrl.Search(args)
	case "list":
		if err := requireArgs(name, args, 0); err != nil {
			return false, err
		}
		return false, ctrl.List()
	case "next":
		if err := requireArgs(name, args, 0); err != nil {
			return false, err
		}
		ctrl.Advance()
		return false, ctrl.List()
	case "select":
		if err := requireArgs(name, args, 1); err != nil {
			return false, err
		}
		return false, ctrl.Select(args[0])
	case "folders":
		if len(args) > 1 || (len(args) == 1 && args[0] != "subscribed") {
			return false, fmt.Errorf("usage: folders [subscribed]")
		}
		return false, ctrl.Folders(len(args) == 1)
	case "view":
		if err := requireArgs(name, args, 1); err != nil {
			return false, err
		}
		return false, ctrl.View(args[0])
	case "create":
		if err := requireArgs(name, args, 1); err != nil {
			return false, err
		}
		return false, ctrl.CreateFolder(args[0])
	case "rename":
		if err := requireArgs(name, args, 2); err != nil {
			return false, err
		}
		return false, ctrl.RenameFolder(args[0], args[1])
	case "copy":
		if err := requireArgs(name, args, 2); err != nil {
			return false, err
		}
		return false, ctrl.Copy(args[0], args[1])
	case "delete":
		if err := requireArgs(name, args, 1); err != nil {
			return false, err
		}
		return false, ctrl.Delete(args[0])
	case "restore":
		if err := requireArgs(name, args, 1); err != nil {
			return false, err
		}
		return false, ctrl.Restore(args[0])
	case "expunge":
		if err := requireArgs(name, args, 0); err != nil {
			return false, err
		}
		return false, ctrl.Expunge()
	case "sync":
		if err := requireArgs(name, args, 0); err != nil {
			return false, err
		}
		ctrl.Sync()
		return false, nil
	case "set":
		if err := requireArgs(name, args, 2); err != nil {
			return false, err
		}
		return false, ctrl.Set(args[0], args[1])
	case "help":
		printHelp(out)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
}

func requireArgs(name string, args []string, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s takes %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Commands:
  search <terms...>      search the selected folder and list the result
  list                   show the current page of the listing
  next                   advance to the next page and show it
  view <ref>             show the plain-text body of message(s), e.g. 3 or 2-5
  select <folder>        switch folders
  folders [subscribed]   list folders
  create <folder>        create a folder
  rename <old> <new>     rename a folder
  copy <ref> <folder>    copy message(s) to a folder
  delete <ref|folder>    mark message(s) deleted, or delete a folder
  restore <ref>          clear the deleted mark
  expunge                permanently remove deleted messages
  sync                   drop cached metadata and re-fetch on next use
  set <key> <value>      change dateformat, pagesize, or sort
  quit                   leave
`)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return message.DefaultWidth
	}
	return width
}
