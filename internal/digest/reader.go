// Package digest provides a sequential byte source that maintains a running
// SHA-1 over everything it delivers, while still allowing a caller to peek
// at or absorb bytes without disturbing that running hash. This is the
// mechanism the v2/v3 parser needs to look ahead for an extension tag
// without corrupting the trailing checksum it must later verify.
package digest

import (
	"bufio"
	"hash"
	"io"

	"github.com/pjbgf/sha1cd"
)

// Reader is a sequential byte source with a running SHA-1 digest. Read
// advances the digest; PeekRaw and Absorb exist so callers can inspect or
// fold in bytes without corrupting it.
type Reader struct {
	buf *bufio.Reader
	tee io.Reader
	h   hash.Hash
	pos int64
}

// NewReader returns a Reader sourcing bytes from r. The digest is seeded
// fresh and covers every byte subsequently returned by Read.
func NewReader(r io.Reader) *Reader {
	buf := bufio.NewReader(r)
	h := sha1cd.New()
	return &Reader{
		buf: buf,
		tee: io.TeeReader(buf, h),
		h:   h,
	}
}

// Read implements io.Reader, folding every byte returned into the running
// digest.
func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.tee.Read(p)
	d.pos += int64(n)
	return n, err
}

// PeekRaw returns the next n bytes without consuming them and without
// updating the digest.
func (d *Reader) PeekRaw(n int) ([]byte, error) {
	return d.buf.Peek(n)
}

// Absorb advances the stream past len(b) bytes and folds b into the running
// digest. It is used after PeekRaw has identified those bytes as belonging
// to the logical content (an extension tag) rather than the trailer: the
// bytes are discarded directly from the underlying buffer, bypassing the
// digesting tee, and then hashed from the already-peeked copy, so they are
// folded into the digest exactly once.
func (d *Reader) Absorb(b []byte) error {
	n, err := d.buf.Discard(len(b))
	d.pos += int64(n)
	if err != nil {
		return err
	}
	d.h.Write(b)
	return nil
}

// ReadRaw reads directly from the underlying stream without updating the
// digest. It is how the trailing SHA-1 itself is read: those bytes must
// never be folded into the hash they are compared against.
func (d *Reader) ReadRaw(p []byte) (int, error) {
	n, err := d.buf.Read(p)
	d.pos += int64(n)
	return n, err
}

// ReadByte implements io.ByteReader over the digesting stream.
func (d *Reader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := d.Read(b[:])
	return b[0], err
}

// Position returns the number of bytes consumed from the stream so far by
// Read, Absorb and ReadRaw; bytes only peeked at are not counted.
func (d *Reader) Position() int64 {
	return d.pos
}

// Sum returns the current running digest.
func (d *Reader) Sum() []byte {
	return d.h.Sum(nil)
}
