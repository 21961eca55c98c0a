package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultPort           = 8080
	DefaultGroupAttribute = "participants"
	DefaultLogLevel       = "info"
	DefaultSourceIDPrefix = "WhatsappWeb.js"
	DefaultDeviceName     = "WPP-Bridge"
)

// Config is the bridge configuration. Values come from an optional TOML file and
// are overridden by the environment variable named in each field's env tag.
type Config struct {
	Port           int    `toml:"port" env:"PORT" validate:"min=1,max=65535"`
	ChatwootURL    string `toml:"chatwoot_api_url" env:"CHATWOOT_API_URL" validate:"required,url"`
	AccountID      int64  `toml:"chatwoot_account_id" env:"CHATWOOT_ACCOUNT_ID" validate:"gt=0"`
	InboxID        int64  `toml:"chatwoot_inbox_id" env:"CHATWOOT_INBOX_ID" validate:"gt=0"`
	AccessToken    string `toml:"chatwoot_api_access_token" env:"CHATWOOT_API_ACCESS_TOKEN" validate:"required"`
	AuthToken      string `toml:"auth_token" env:"AUTH_TOKEN" validate:"required"`
	GroupAttribute string `toml:"group_chat_attribute_id" env:"GROUP_CHAT_ATTRIBUTE_ID" validate:"required"`
	InDocker       bool   `toml:"in_docker" env:"IN_DOCKER"`
	SessionPath    string `toml:"session_path" env:"SESSION_PATH"`
	LogLevel       string `toml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	SourceIDPrefix string `toml:"source_id_prefix" env:"SOURCE_ID_PREFIX" validate:"required,excludes=:"`
	DeviceName     string `toml:"device_name" env:"DEVICE_NAME" validate:"required"`
}

// Default returns a config populated with the optional values' defaults.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		GroupAttribute: DefaultGroupAttribute,
		LogLevel:       DefaultLogLevel,
		SourceIDPrefix: DefaultSourceIDPrefix,
		DeviceName:     DefaultDeviceName,
	}
}

// Load builds the configuration: defaults, then the TOML file at path (skipped
// when path is empty), then the process environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = DefaultSessionPath(cfg.InboxID)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field, named by its environment variable.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := range t.NumField() {
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			field.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			field.SetBool(b)
		}
	}
	return nil
}
