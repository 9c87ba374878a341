package pagefile

import (
	"bytes"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// File is an open logical file of a Backend, with a cache of its blocks.
// File implements io.ReadWriteSeeker, with the constraint that individual
// reads and writes never cross a block boundary.
type File struct {
	name    string
	backend Backend
	count   int64             // Number of blocks. Never decreases.
	offset  int64             // Current byte offset.
	blocks  map[uint32]*block // Cached blocks, by index.
}

type block struct {
	data  []byte // BlockSize buffer.
	dirty bool   // Differs from the value last read from or written to the Backend.
}

// Open the logical file |name| of the Backend. The block count of the File is
// recovered from the database header of block 0, if it exists. A missing
// block 0 is a new, empty database and is not an error.
func Open(backend Backend, name string) (*File, error) {
	var f = &File{
		name:    name,
		backend: backend,
		blocks:  make(map[uint32]*block),
	}

	var data, ok, err = backend.GetBlock(name, 0)
	if err != nil {
		blockFetchesTotal.WithLabelValues("error").Inc()
		return nil, &BackingStoreError{Op: "get", Name: name, Index: 0, Err: err}
	} else if !ok {
		blockFetchesTotal.WithLabelValues("absent").Inc()
		return f, nil
	}
	blockFetchesTotal.WithLabelValues("found").Inc()

	pageCount, err := PageCount(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %q", name)
	} else if len(data) != BlockSize {
		return nil, errors.WithMessagef(ErrCorruptBlock, "block 0 of %q is %d bytes", name, len(data))
	}
	f.count = int64(pageCount)
	f.blocks[0] = &block{data: data}

	return f, nil
}

// Name of the File.
func (f *File) Name() string { return f.name }

// Size of the File, which is its block count multiplied by BlockSize.
func (f *File) Size() int64 { return f.count * BlockSize }

// BlockCount returns the number of blocks of the File.
func (f *File) BlockCount() int64 { return f.count }

// Dirty returns the number of cached blocks which have not been flushed.
func (f *File) Dirty() (n int) {
	for _, b := range f.blocks {
		if b.dirty {
			n++
		}
	}
	return
}

// Seek sets the offset for the next Read or Write. Only io.SeekStart is
// supported, and other values of |whence| return ErrUnsupportedSeek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.blocks == nil {
		return 0, ErrClosed
	} else if whence != io.SeekStart {
		return f.offset, ErrUnsupportedSeek
	} else if offset < 0 || offset/BlockSize >= MaxBlocks {
		return f.offset, errors.WithMessagef(ErrOffsetRange, "seek to %d", offset)
	}
	f.offset = offset
	return f.offset, nil
}

// Read from the block at the current offset into |p|. Read copies through the
// end of |p| or of the current block, whichever is first, and advances the
// offset by the number of bytes read. Blocks which don't exist read as zeros.
func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var b, err = f.current()
	if err != nil {
		return 0, err
	}
	var n = copy(p, b.data[f.offset%BlockSize:])
	f.offset += int64(n)

	return n, nil
}

// Write |p| into the block at the current offset. Like Read, Write copies
// through the end of |p| or of the current block, whichever is first, and
// advances the offset. The block count grows to cover the written range.
func (f *File) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var b, err = f.current()
	if err != nil {
		return 0, err
	}
	var dst = b.data[f.offset%BlockSize:]
	if len(p) > len(dst) {
		p = p[:len(dst)]
	}
	if !bytes.Equal(dst[:len(p)], p) {
		copy(dst, p)
		b.dirty = true
	}
	f.offset += int64(len(p))

	if count := (f.offset + BlockSize - 1) / BlockSize; count > f.count {
		f.count = count
	}
	return len(p), nil
}

// Flush writes every dirty block to the Backend, in ascending block order.
// Flush stops at the first failure, returning a *PartialFlushError.
// Each block is flushed atomically, but a Flush as a whole is not.
func (f *File) Flush() error {
	if f.blocks == nil {
		return ErrClosed
	}
	var dirty []uint32
	for index, b := range f.blocks {
		if b.dirty {
			dirty = append(dirty, index)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i] < dirty[j] })

	for i, index := range dirty {
		var b = f.blocks[index]

		if err := f.backend.PutBlock(f.name, index, b.data); err != nil {
			blockFlushesTotal.WithLabelValues("error").Inc()

			return &PartialFlushError{
				Flushed: i,
				Pending: len(dirty) - i,
				Err:     &BackingStoreError{Op: "put", Name: f.name, Index: index, Err: err},
			}
		}
		blockFlushesTotal.WithLabelValues("ok").Inc()
		b.dirty = false
	}
	return nil
}

// Close the File, releasing its cached blocks. Close does not Flush:
// any dirty blocks are discarded.
func (f *File) Close() error {
	if f.blocks == nil {
		return ErrClosed
	}
	if n := f.Dirty(); n != 0 {
		log.WithFields(log.Fields{
			"name":  f.name,
			"dirty": n,
		}).Warn("closing file with unflushed blocks")
	}
	f.blocks = nil
	return nil
}

// current returns the block which contains the current offset,
// fetching it from the Backend or zero-filling it if not yet cached.
func (f *File) current() (*block, error) {
	if f.blocks == nil {
		return nil, ErrClosed
	} else if f.offset/BlockSize >= MaxBlocks {
		return nil, errors.WithMessagef(ErrOffsetRange, "offset %d", f.offset)
	}
	var index = uint32(f.offset / BlockSize)

	if b, ok := f.blocks[index]; ok {
		return b, nil
	}

	var data, ok, err = f.backend.GetBlock(f.name, index)
	if err != nil {
		blockFetchesTotal.WithLabelValues("error").Inc()
		return nil, &BackingStoreError{Op: "get", Name: f.name, Index: index, Err: err}
	} else if !ok {
		blockFetchesTotal.WithLabelValues("absent").Inc()
		data = make([]byte, BlockSize)
	} else if len(data) != BlockSize {
		blockFetchesTotal.WithLabelValues("error").Inc()
		return nil, errors.WithMessagef(ErrCorruptBlock, "block %d of %q is %d bytes", index, f.name, len(data))
	} else {
		blockFetchesTotal.WithLabelValues("found").Inc()
	}

	var b = &block{data: data}
	f.blocks[index] = b
	return b, nil
}

var (
	blockFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevfs_block_fetches_total",
		Help: "Cumulative number of block fetches from a backing store, by result.",
	}, []string{"result"})

	blockFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevfs_block_flushes_total",
		Help: "Cumulative number of block flushes to a backing store, by status.",
	}, []string{"status"})
)
