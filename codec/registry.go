package codec

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/meigma/stow/internal/sizing"
)

// MaxContainerSize bounds the decoded stream of a loaded container.
const MaxContainerSize = 1 << 30

// Factory builds a codec from its configuration.
type Factory func(cfg Config) (Codec, error)

// Registry maps codec names to factories.
//
// A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the builtin codecs:
// raw, zstd, lz4 and snappy.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(RawName, NewRaw)
	r.Register(ZstdName, NewZstd)
	r.Register(LZ4Name, NewLZ4)
	r.Register(SnappyName, NewSnappy)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the codec registered under name.
func (r *Registry) New(name string, cfg Config) (Codec, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return f(cfg)
}

// Names returns the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// streamCodec is the shared implementation of the builtin codecs. They
// differ only in how the stream is encoded on disk.
type streamCodec struct {
	name   string
	ext    string
	cfg    Config
	encode encodeFunc
	decode decodeFunc
}

func (c *streamCodec) Name() string { return c.name }
func (c *streamCodec) Ext() string  { return c.ext }

func (c *streamCodec) NewContainer() Container {
	return newWriteContainer(c.cfg, c.encode)
}

func (c *streamCodec) Load(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := sizing.ReadAllWithLimit(f, MaxContainerSize, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidContainer, path, MaxContainerSize))
	if err != nil {
		return nil, err
	}
	stream, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidContainer, path, err)
	}
	return newReadContainer(c.cfg, stream), nil
}
