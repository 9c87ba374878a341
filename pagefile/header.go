package pagefile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Offsets of SQLite database header fields (https://www.sqlite.org/fileformat.html).
const (
	hdrPageSizeOffset      = 16
	hdrChangeCounterOffset = 24
	hdrPageCountOffset     = 28
	hdrFreelistHeadOffset  = 32
	hdrFreelistCountOffset = 36
	hdrMinLength           = 40
)

// Header is a decoded subset of the SQLite database header, held in block 0.
type Header struct {
	PageSize      int    // Database page size in bytes.
	ChangeCounter uint32 // File change counter.
	PageCount     uint32 // Size of the database file in pages.
	FreelistHead  uint32 // Page number of the first freelist trunk page.
	FreelistCount uint32 // Total number of freelist pages.
}

// PageCount returns the big-endian page count of the database header in |b|.
func PageCount(b []byte) (uint32, error) {
	if len(b) < hdrPageCountOffset+4 {
		return 0, errors.WithMessagef(ErrCorruptHeader, "header is %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b[hdrPageCountOffset:]), nil
}

// ParseHeader decodes the database header of |b|.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < hdrMinLength {
		return Header{}, errors.WithMessagef(ErrCorruptHeader, "header is %d bytes", len(b))
	}
	var h = Header{
		PageSize:      int(binary.BigEndian.Uint16(b[hdrPageSizeOffset:])),
		ChangeCounter: binary.BigEndian.Uint32(b[hdrChangeCounterOffset:]),
		PageCount:     binary.BigEndian.Uint32(b[hdrPageCountOffset:]),
		FreelistHead:  binary.BigEndian.Uint32(b[hdrFreelistHeadOffset:]),
		FreelistCount: binary.BigEndian.Uint32(b[hdrFreelistCountOffset:]),
	}
	// A page size of 65536 doesn't fit in two bytes, and is encoded as 1.
	if h.PageSize == 1 {
		h.PageSize = 1 << 16
	}
	return h, nil
}
