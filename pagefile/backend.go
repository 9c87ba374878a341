package pagefile

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.gazette.dev/pagevfs/async"
)

// BlockSize is the size of each block of a File. It must equal the page
// size of the SQLite database stored in the File.
const BlockSize = 4096

// MaxBlocks is the maximum number of blocks of a File.
const MaxBlocks = 1 << 32

// Backend persists the blocks of logical files. Each block is exactly
// BlockSize bytes. A Backend must not retain a slice passed to or returned
// from it beyond the call.
type Backend interface {
	// GetBlock returns block |index| of file |name|, or ok=false if the
	// block has never been persisted.
	GetBlock(name string, index uint32) (data []byte, ok bool, err error)
	// PutBlock durably persists |data| as block |index| of file |name|.
	PutBlock(name string, index uint32, data []byte) error
}

// BlockKey returns the key under which block |index| of file |name|
// is stored within a KeyValue.
func BlockKey(name string, index uint32) string {
	return name + "." + strconv.FormatUint(uint64(index), 10) + ".block"
}

// ParseBlockKey is the inverse of BlockKey.
func ParseBlockKey(key string) (name string, index uint32, err error) {
	var rest, ok = strings.CutSuffix(key, ".block")
	var dot = strings.LastIndexByte(rest, '.')

	if !ok || dot <= 0 {
		return "", 0, fmt.Errorf("malformed block key %q", key)
	}
	if i, err := strconv.ParseUint(rest[dot+1:], 10, 32); err != nil {
		return "", 0, fmt.Errorf("malformed block key %q: %w", key, err)
	} else {
		return rest[:dot], uint32(i), nil
	}
}

// KeyValue is an asynchronous key-value store. Each operation returns
// immediately with a Future which resolves on the operation's completion.
type KeyValue interface {
	// Get resolves with the value of |key|, or with a nil value if |key|
	// doesn't exist. Present values are never nil.
	Get(key string) *async.Future[[]byte]
	// Put resolves when |value| is durably stored under |key|.
	Put(key string, value []byte) *async.Future[struct{}]
}

// KeyedBackend is a Backend of a KeyValue, which stores blocks under
// BlockKey keys as raw BlockSize values, with no added envelope.
type KeyedBackend struct {
	KV     KeyValue
	Bridge async.Bridge
}

// NewKeyedBackend returns a KeyedBackend of the KeyValue and Bridge.
func NewKeyedBackend(kv KeyValue, bridge async.Bridge) *KeyedBackend {
	return &KeyedBackend{KV: kv, Bridge: bridge}
}

// GetBlock fetches the block's key, awaiting its result through the Bridge.
func (b *KeyedBackend) GetBlock(name string, index uint32) ([]byte, bool, error) {
	var value, err = async.Await(b.Bridge, b.KV.Get(BlockKey(name, index)))
	if err != nil || value == nil {
		return nil, false, err
	}
	return value, true, nil
}

// PutBlock stores a copy of |data| under the block's key, awaiting
// completion through the Bridge.
func (b *KeyedBackend) PutBlock(name string, index uint32, data []byte) error {
	var value = append([]byte(nil), data...)
	return b.Bridge.Wait(b.KV.Put(BlockKey(name, index), value))
}

// PageHost is a host-owned table of BlockSize pages, which are exchanged
// with the host by copy. A PageHost backs the blocks of a single file.
type PageHost interface {
	// GetPage copies page |index| into |dst|, which is BlockSize bytes,
	// returning false if the page doesn't exist.
	GetPage(index uint32, dst []byte) (bool, error)
	// PutPage copies |src|, which is BlockSize bytes, into page |index|.
	PutPage(index uint32, src []byte) error
}

// PageTableBackend is a Backend of a PageHost. File names are not part
// of a page's identity: the PageHost serves exactly one database.
type PageTableBackend struct {
	Host PageHost
}

// NewPageTableBackend returns a PageTableBackend of the PageHost.
func NewPageTableBackend(host PageHost) *PageTableBackend {
	return &PageTableBackend{Host: host}
}

// GetBlock copies the page out of the host into an owned buffer.
func (b *PageTableBackend) GetBlock(_ string, index uint32) ([]byte, bool, error) {
	var buf = make([]byte, BlockSize)
	if ok, err := b.Host.GetPage(index, buf); err != nil || !ok {
		return nil, false, err
	}
	return buf, true, nil
}

// PutBlock copies the block into the host page table.
func (b *PageTableBackend) PutBlock(_ string, index uint32, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("page %d is %d bytes (expected %d)", index, len(data), BlockSize)
	}
	return b.Host.PutPage(index, data)
}

// MemoryBackend is a Backend which holds blocks in process memory.
// It backs transient files, and is useful in testing.
type MemoryBackend struct {
	mu     sync.Mutex
	blocks map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blocks: make(map[string][]byte)}
}

// GetBlock returns a copy of the block, if it exists.
func (b *MemoryBackend) GetBlock(name string, index uint32) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var data, ok = b.blocks[BlockKey(name, index)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// PutBlock stores a copy of the block.
func (b *MemoryBackend) PutBlock(name string, index uint32, data []byte) error {
	b.mu.Lock()
	b.blocks[BlockKey(name, index)] = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored blocks.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}
