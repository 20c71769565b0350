// Package binary provides fixed-width big-endian primitives for decoding and
// encoding the on-disk git index formats.
package binary

import (
	"encoding/binary"
	"io"
)

// Read reads big-endian binary data from r into each element of data, in
// order. Each element must be a pointer suitable for encoding/binary.Read.
func Read(r io.Reader, data ...interface{}) error {
	for _, v := range data {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return err
		}
	}

	return nil
}

// ReadUint32 reads a big-endian uint32 from r.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}

	return v, nil
}

// ReadUint16 reads a big-endian uint16 from r.
func ReadUint16(r io.Reader) (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}

	return v, nil
}

// ReadUntil reads single bytes from r until the delimiter is found,
// returning the bytes read excluding the delimiter. The delimiter itself is
// consumed. r is read one byte at a time so that it composes with readers
// (such as a digesting stream) that must not be wrapped in extra buffering.
func ReadUntil(r io.ByteReader, delim byte) ([]byte, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == delim {
			return buf, nil
		}
		buf = append(buf, b)
	}
}

// ReadNUL reads from r until a NUL byte, returning the bytes read excluding
// the NUL. The NUL is consumed.
func ReadNUL(r io.ByteReader) ([]byte, error) {
	return ReadUntil(r, 0)
}

// Discard reads and discards exactly n bytes from r.
func Discard(r io.Reader, n int) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}
