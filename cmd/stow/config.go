package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/meigma/stow/codec"
)

// config holds settings shared by all commands. Values come from the
// optional YAML file first and are then overridden by flags.
type config struct {
	Codec     string `yaml:"codec"`
	Key       string `yaml:"key"`
	KeyFile   string `yaml:"key_file"`
	Capacity  int64  `yaml:"capacity"`
	Workers   int    `yaml:"workers"`
	Queue     int    `yaml:"queue"`
	LogLevel  string `yaml:"log_level"`
	Overwrite bool   `yaml:"overwrite"`
	Prompt    bool   `yaml:"prompt"`
}

func defaultConfig() config {
	return config{
		Codec:    codec.ZstdName,
		Capacity: codec.DefaultCapacity,
		LogLevel: "info",
	}
}

// loadConfig reads the YAML file at path into cfg. A missing file is an
// error only when the path was given explicitly.
func loadConfig(path string, explicit bool, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// addFlags registers the shared flags on fs, bound to cfg.
func (c *config) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Codec, "codec", "c", c.Codec, "container codec (see 'stow codecs')")
	fs.StringVarP(&c.Key, "key", "k", c.Key, "passphrase keying container streams")
	fs.StringVar(&c.KeyFile, "key-file", c.KeyFile, "read the passphrase from this file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
}

// keyHash resolves the passphrase from the flag or key file.
func (c *config) keyHash() ([codec.KeySize]byte, error) {
	secret := []byte(c.Key)
	if c.KeyFile != "" {
		data, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return [codec.KeySize]byte{}, fmt.Errorf("read key file: %w", err)
		}
		secret = []byte(strings.TrimRight(string(data), "\r\n"))
	}
	return codec.DeriveKeyHash(secret), nil
}

func (c *config) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
