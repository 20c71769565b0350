// Package objhash provides the 20-byte SHA-1 object name type shared by the
// v2/v3 reader and the v5 writer.
package objhash

import (
	"encoding/hex"
	"io"
)

// Size is the length in bytes of a SHA-1 object name.
const Size = 20

// ObjectID is a 20-byte SHA-1 object name, as used for blob/tree/commit
// identities throughout the index formats.
type ObjectID [Size]byte

// Zero is the all-zero ObjectID, used for "unknown" tree hashes in v5
// directory records and for absent stages in the resolve-undo extension.
var Zero ObjectID

// IsZero reports whether id is the all-zero object name.
func (id ObjectID) IsZero() bool {
	return id == Zero
}

// String returns the lower-case hexadecimal representation of id.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 20 bytes of id.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// ReadFrom reads exactly Size bytes from r into id.
func (id *ObjectID) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, id[:])
	return int64(n), err
}

// WriteTo writes the raw bytes of id to w.
func (id ObjectID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(id[:])
	return int64(n), err
}

// FromBytes builds an ObjectID from a 20-byte slice. It panics if b is not
// exactly Size bytes long, mirroring the fixed-width nature of the on-disk
// format callers read this from.
func FromBytes(b []byte) ObjectID {
	var id ObjectID
	if len(b) != Size {
		panic("objhash: FromBytes requires a 20-byte slice")
	}
	copy(id[:], b)
	return id
}
