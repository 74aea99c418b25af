package stow

import (
	"log/slog"
	"runtime"

	"github.com/meigma/stow/codec"
)

// DefaultQueueSize is the default number of indexed entries that may wait
// for an archive worker.
const DefaultQueueSize = 64

// createConfig holds configuration for archive creation.
type createConfig struct {
	codec     string
	registry  *codec.Registry
	capacity  int64
	workers   int
	queueSize int
	keyHash   [codec.KeySize]byte
	status    StatusFunc
	logger    *slog.Logger
}

func defaultCreateConfig() createConfig {
	return createConfig{
		codec:     codec.ZstdName,
		capacity:  codec.DefaultCapacity,
		workers:   runtime.GOMAXPROCS(0),
		queueSize: DefaultQueueSize,
		keyHash:   codec.DeriveKeyHash(nil),
	}
}

// CreateOption configures archive creation.
type CreateOption func(*createConfig)

// CreateWithCodec selects the codec by registry name. The default is zstd.
func CreateWithCodec(name string) CreateOption {
	return func(cfg *createConfig) {
		cfg.codec = name
	}
}

// CreateWithRegistry sets the registry codecs are looked up in.
// The default is codec.NewRegistry().
func CreateWithRegistry(reg *codec.Registry) CreateOption {
	return func(cfg *createConfig) {
		cfg.registry = reg
	}
}

// CreateWithCapacity sets the number of stream bytes per container.
// Values < 1 keep codec.DefaultCapacity.
func CreateWithCapacity(n int64) CreateOption {
	return func(cfg *createConfig) {
		if n > 0 {
			cfg.capacity = n
		}
	}
}

// CreateWithWorkers sets the number of archive workers, each writing its
// own stream of containers. Values < 1 use GOMAXPROCS.
func CreateWithWorkers(n int) CreateOption {
	return func(cfg *createConfig) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		cfg.workers = n
	}
}

// CreateWithQueueSize bounds the number of indexed entries waiting for a
// worker. Values < 1 use DefaultQueueSize.
func CreateWithQueueSize(n int) CreateOption {
	return func(cfg *createConfig) {
		if n < 1 {
			n = DefaultQueueSize
		}
		cfg.queueSize = n
	}
}

// CreateWithKey derives the key hash from a passphrase.
// Containers can only be read back with the same key.
func CreateWithKey(secret []byte) CreateOption {
	return func(cfg *createConfig) {
		cfg.keyHash = codec.DeriveKeyHash(secret)
	}
}

// CreateWithKeyHash sets a precomputed key hash.
func CreateWithKeyHash(h [codec.KeySize]byte) CreateOption {
	return func(cfg *createConfig) {
		cfg.keyHash = h
	}
}

// CreateWithStatus sets a callback for per-entry status changes.
func CreateWithStatus(fn StatusFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.status = fn
	}
}

// CreateWithLogger sets the logger for archive creation.
// If not set, logging is disabled.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}
