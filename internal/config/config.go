package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
}

type IMAPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	TLS                bool   `mapstructure:"tls" yaml:"tls"`
	StartTLS           bool   `mapstructure:"starttls" yaml:"starttls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type AuthConfig struct {
	Username       string `mapstructure:"username" yaml:"username"`
	Password       string `mapstructure:"password" yaml:"password"`
	PasswordSource string `mapstructure:"-" yaml:"-"`
}

// DefaultsConfig seeds the session settings the `set` command can change at
// runtime.
type DefaultsConfig struct {
	Folder     string `mapstructure:"folder" yaml:"folder"`
	Sort       string `mapstructure:"sort" yaml:"sort"`
	DateFormat string `mapstructure:"date_format" yaml:"date_format"`
	PageSize   int    `mapstructure:"page_size" yaml:"page_size"`
}

func DefaultConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			Port:     993,
			TLS:      true,
			StartTLS: false,
		},
		Defaults: DefaultsConfig{
			Folder:     "INBOX",
			Sort:       "date",
			DateFormat: "2006-01-02 15:04",
			PageSize:   10,
		},
	}
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// First run: no config file yet. Viper reports an explicit config
		// file that is missing as a plain path error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Auth.Password != "" {
		masked.Auth.Password = "****"
	}
	return masked
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.tls", cfg.IMAP.TLS)
	v.SetDefault("imap.starttls", cfg.IMAP.StartTLS)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)

	v.SetDefault("defaults.folder", cfg.Defaults.Folder)
	v.SetDefault("defaults.sort", cfg.Defaults.Sort)
	v.SetDefault("defaults.date_format", cfg.Defaults.DateFormat)
	v.SetDefault("defaults.page_size", cfg.Defaults.PageSize)
}

func Validate(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}
	return nil
}
