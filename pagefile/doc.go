// Package pagefile implements a block-cached file over a key-value Backend,
// for use as the main database file of an embedded SQLite instance.
//
// # File Representation
//
// SQLite guarantees that reads and writes of its main database file are
// page-aligned and of page size. The file can thus be thought of as an
// associative map of page indices and their current content. A File maps the
// byte offsets SQLite uses onto fixed-size blocks of BlockSize bytes
// (which must equal the SQLite page size, see PRAGMA page_size), and persists
// each block as a distinct Backend entry:
//
//	block index        = offset / BlockSize
//	intra-block offset = offset % BlockSize
//	file size          = block count * BlockSize
//
// Blocks are materialized on first touch, by read or write, from the Backend
// if present or else as zero-filled buffers. They're retained in the File
// until it's closed, and written back only by Flush. A File never reads or
// writes across a block boundary in a single call: callers must loop upon a
// short read or write (see io.ReadFull).
//
// The block count of a File is seeded on Open from the page count of the
// SQLite database header (a big-endian uint32 at byte 28 of block 0), and
// thereafter only grows as writes extend the file.
//
// # Backends
//
// Two Backend implementations are provided. KeyedBackend persists blocks in
// an asynchronous key-value store under keys "<file-name>.<block-index>.block",
// driving each store operation to completion through an async.Bridge.
// PageTableBackend exchanges fixed-size pages with a host-owned page table
// by copy, so that no reference to host memory outlives a call.
//
// # Concurrency
//
// A File is not safe for concurrent use. It assumes a single-writer hosting
// model where at most one execution context uses a database at a time.
package pagefile
