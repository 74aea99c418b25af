package stow

import (
	"log/slog"

	"github.com/meigma/stow/codec"
)

// extractConfig holds configuration for extraction.
type extractConfig struct {
	codec         string
	registry      *codec.Registry
	keyHash       [codec.KeySize]byte
	overwrite     bool
	preserveMode  bool
	preserveTimes bool
	prompt        FolderPrompt
	index         bool
	logger        *slog.Logger
}

func defaultExtractConfig() extractConfig {
	return extractConfig{
		codec:         codec.ZstdName,
		keyHash:       codec.DeriveKeyHash(nil),
		preserveMode:  true,
		preserveTimes: true,
	}
}

// ExtractOption configures extraction.
type ExtractOption func(*extractConfig)

// ExtractWithCodec selects the codec containers were written with.
// The default is zstd.
func ExtractWithCodec(name string) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.codec = name
	}
}

// ExtractWithRegistry sets the registry codecs are looked up in.
func ExtractWithRegistry(reg *codec.Registry) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.registry = reg
	}
}

// ExtractWithKey derives the key hash from a passphrase.
func ExtractWithKey(secret []byte) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.keyHash = codec.DeriveKeyHash(secret)
	}
}

// ExtractWithKeyHash sets a precomputed key hash.
func ExtractWithKeyHash(h [codec.KeySize]byte) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.keyHash = h
	}
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.overwrite = overwrite
	}
}

// ExtractWithPreserveMode applies permission bits from the archive.
// Enabled by default.
func ExtractWithPreserveMode(preserve bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.preserveMode = preserve
	}
}

// ExtractWithPreserveTimes applies modification times from the archive.
// Enabled by default.
func ExtractWithPreserveTimes(preserve bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.preserveTimes = preserve
	}
}

// ExtractWithFolderPrompt sets the collaborator asked for a folder to
// search when a container of a chain is missing.
func ExtractWithFolderPrompt(prompt FolderPrompt) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.prompt = prompt
	}
}

// ExtractWithIndex indexes the source folder before extracting instead of
// on the first missing container.
func ExtractWithIndex(index bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.index = index
	}
}

// ExtractWithLogger sets the logger for extraction.
// If not set, logging is disabled.
func ExtractWithLogger(logger *slog.Logger) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.logger = logger
	}
}
