// Package config loads sparkdom settings from a YAML or JSONC file.
//
// The file is named by the --config flag or the SPARKDOM_CONFIG environment
// variable. Without one the defaults apply.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/delaneyj/sparkdom/dom"
	"github.com/delaneyj/sparkdom/engine"
	"github.com/delaneyj/sparkdom/morph"
)

const EnvVar = "SPARKDOM_CONFIG"

var ErrUnknownFormat = errors.New("config: unknown file format")

type Config struct {
	// Prefix is put in front of every directive name.
	Prefix string    `yaml:"prefix"`
	Morph  Morph     `yaml:"morph"`
	Log    LogConfig `yaml:"log"`
}

type Morph struct {
	// Key is the attribute that identifies nodes across moves.
	Key       string `yaml:"key"`
	Lookahead bool   `yaml:"lookahead"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Prefix: "x-",
		Morph:  Morph{Key: "key"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path, or the file named by SPARKDOM_CONFIG when path is empty.
// The format follows the extension: .yaml and .yml are YAML, .json and
// .jsonc are JSON with comments and trailing commas.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data on top of the defaults. JSONC is reduced to JSON and
// read by the YAML decoder, which accepts JSON as well.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if strings.ContainsAny(c.Prefix, " \t=\"'<>/") {
		errs = append(errs, fmt.Errorf("prefix %q is not a valid attribute name start", c.Prefix))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// Logger returns a text logger writing to stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (c *Config) EngineOptions(logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithPrefix(c.Prefix),
		engine.WithLogger(logger),
	}
}

// MorphOptions returns morph options keyed on the configured attribute.
func (c *Config) MorphOptions() morph.Options {
	opts := morph.Options{Lookahead: c.Morph.Lookahead}
	if key := c.Morph.Key; key != "" && key != "key" {
		opts.Key = func(el *html.Node) string {
			v, _ := dom.Attr(el, key)
			return v
		}
	}
	return opts
}
