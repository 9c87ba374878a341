package common

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"io"
)

// Blocks are small, and stores send them whole with a digest of their content.

// ReadContent reads all |length| bytes of |content|.
func ReadContent(content io.ReaderAt, length int64) ([]byte, error) {
	var buf = make([]byte, length)
	if n, err := content.ReadAt(buf, 0); int64(n) != length {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading content (%d of %d bytes): %w", n, length, err)
	}
	return buf, nil
}

// ContentMD5 returns the MD5 digest of |b|.
func ContentMD5(b []byte) []byte {
	var sum = md5.Sum(b)
	return sum[:]
}

// ContentMD5Base64 returns the base64 MD5 digest of |b|, as used by a
// Content-MD5 request header.
func ContentMD5Base64(b []byte) string {
	return base64.StdEncoding.EncodeToString(ContentMD5(b))
}

// ContentCRC32C returns the Castagnoli CRC-32 of |b|.
func ContentCRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}

// LengthChecked returns a ReadCloser of |rc| which fails with
// io.ErrUnexpectedEOF if |rc| ends after more or fewer than |length| bytes.
// A negative |length| is unknown, and isn't checked.
func LengthChecked(rc io.ReadCloser, length int64) io.ReadCloser {
	if length < 0 {
		return rc
	}
	return &lengthChecked{ReadCloser: rc, remaining: length}
}

type lengthChecked struct {
	io.ReadCloser
	remaining int64
}

func (r *lengthChecked) Read(p []byte) (int, error) {
	var n, err = r.ReadCloser.Read(p)
	r.remaining -= int64(n)

	if r.remaining < 0 || (err == io.EOF && r.remaining != 0) {
		return n, fmt.Errorf("content ended with %d unexpected bytes remaining: %w", r.remaining, io.ErrUnexpectedEOF)
	}
	return n, err
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)
