package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"imapsh/internal/config"
)

const (
	keyringPasswordEnv = "IMAPSH_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "IMAPSH_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential
)

var (
	ErrSecretNotFound        = errors.New("secret not found")
	errMissingUsername       = errors.New("missing username")
	errMissingPassword       = errors.New("missing password")
	errNoTTY                 = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidKeyringBackend = errors.New("invalid keyring backend")
	errKeyringTimeout        = errors.New("keyring connection timed out")
	openKeyringFunc          = openKeyring
	keyringOpenFunc          = keyring.Open
)

func keyringItem(key string, data []byte) keyring.Item {
	return keyring.Item{
		Key:   key,
		Data:  data,
		Label: config.AppName,
	}
}

func allowedBackends(backend string) ([]keyring.BackendType, error) {
	switch backend {
	case "", "auto":
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, or file)", errInvalidKeyringBackend, backend)
	}
}

func fileKeyringPasswordFunc() keyring.PromptFunc {
	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	// Treat "set to empty string" as intentional; empty passphrase is valid.
	if passwordSet {
		return keyring.FixedStringPrompt(password)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return keyring.TerminalPrompt
	}

	return func(_ string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

// keyringOpenTimeout is the maximum time to wait for keyring.Open() to
// complete. On headless Linux, D-Bus SecretService can hang indefinitely if
// gnome-keyring is installed but not running.
const keyringOpenTimeout = 5 * time.Second

func openKeyring() (keyring.Keyring, error) {
	keyringDir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, fmt.Errorf("ensure keyring dir: %w", err)
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv(keyringBackendEnv)))
	backends, err := allowedBackends(backend)
	if err != nil {
		return nil, err
	}

	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	auto := backend == "" || backend == "auto"
	// On Linux with "auto" backend and no D-Bus session, force file backend.
	if runtime.GOOS == "linux" && auto && dbusAddr == "" {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	cfg := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          backends,
		FileDir:                  keyringDir,
		FilePasswordFunc:         fileKeyringPasswordFunc(),
	}

	if runtime.GOOS == "linux" && auto && dbusAddr != "" {
		return openKeyringWithTimeout(cfg, keyringOpenTimeout)
	}

	ring, err := keyringOpenFunc(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	return ring, nil
}

type keyringResult struct {
	ring keyring.Keyring
	err  error
}

// openKeyringWithTimeout wraps keyring.Open with a timeout to prevent
// indefinite hangs.
func openKeyringWithTimeout(cfg keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	ch := make(chan keyringResult, 1)

	go func() {
		ring, err := keyringOpenFunc(cfg)
		ch <- keyringResult{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}

		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v (D-Bus SecretService may be unresponsive); "+
			"set %s=file and %s=<password> to use encrypted file storage instead",
			errKeyringTimeout, timeout, keyringBackendEnv, keyringPasswordEnv)
	}
}

func SetPassword(username, password string) error {
	user := normalize(username)
	if user == "" {
		return errMissingUsername
	}
	if password == "" {
		return errMissingPassword
	}

	ring, err := openKeyringFunc()
	if err != nil {
		return err
	}

	if err := ring.Set(keyringItem(passwordKey(user), []byte(password))); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	return nil
}

func GetPassword(username string) (string, error) {
	user := normalize(username)
	if user == "" {
		return "", errMissingUsername
	}

	ring, err := openKeyringFunc()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(passwordKey(user))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("read secret: %w", err)
	}

	return string(item.Data), nil
}

func passwordKey(username string) string {
	return fmt.Sprintf("auth:password:%s", username)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
