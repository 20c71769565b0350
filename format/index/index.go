// Package index decodes the git v2/v3 staging-area index format: a
// stateful, checksum-verifying binary parser that also understands the
// optional trailing cache-tree and resolve-undo extensions.
package index

import (
	"errors"
	"time"

	"github.com/go-git-tools/index5/internal/objhash"
)

var (
	// ErrBadSignature is returned when the first 4 bytes of the input are
	// not "DIRC".
	ErrBadSignature = errors.New("index: bad signature")
	// ErrUnsupportedVersion is returned when the header version is not 2
	// or 3.
	ErrUnsupportedVersion = errors.New("index: unsupported version")
	// ErrTruncatedInput is returned when a read consumes fewer bytes than
	// the format requires.
	ErrTruncatedInput = errors.New("index: truncated input")
	// ErrMalformedExtension is returned when a cache-tree or resolve-undo
	// record does not match its grammar, or an extension's declared length
	// is not exactly consumed.
	ErrMalformedExtension = errors.New("index: malformed extension")
	// ErrChecksumMismatch is returned when the trailing SHA-1 does not
	// match the digest computed over the preceding bytes.
	ErrChecksumMismatch = errors.New("index: checksum mismatch")
)

var signature = [4]byte{'D', 'I', 'R', 'C'}

// Stage is the 2-bit merge stage carried in an entry's flags.
type Stage uint8

const (
	// StageNone marks an entry with no conflict: the common, merged case.
	StageNone Stage = 0
	// StageAncestor is the common-ancestor version of a conflicted path.
	StageAncestor Stage = 1
	// StageOurs is "our" version of a conflicted path.
	StageOurs Stage = 2
	// StageTheirs is "their" version of a conflicted path.
	StageTheirs Stage = 3
)

const (
	flagStageShift = 12
	flagStageMask  = 0x3
	flagNameMask   = 0xfff
)

// Header is the fixed 12-byte prologue of a v2/v3 index.
type Header struct {
	Signature  [4]byte
	Version    uint32
	EntryCount uint32
}

// Entry is a single stat entry from the index: one stage of one path.
type Entry struct {
	CreatedAt  time.Time // ctime
	ModifiedAt time.Time // mtime
	Dev        uint32
	Ino        uint32
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       uint32
	Hash       objhash.ObjectID
	Flags      uint16

	// ExtendedFlags is only meaningful when the index version is 3.
	ExtendedFlags uint16
	HasExtended   bool

	// Dir is the directory component of the path, "" for a root-level
	// entry. Name is the file component.
	Dir  string
	Name string
}

// Stage returns the 2-bit merge stage encoded in e.Flags.
func (e *Entry) Stage() Stage {
	return Stage((e.Flags >> flagStageShift) & flagStageMask)
}

// Path returns the full slash-joined path of the entry.
func (e *Entry) Path() string {
	if e.Dir == "" {
		return e.Name
	}
	return e.Dir + "/" + e.Name
}

// ctimeParts returns the raw (sec, nsec) pair backing CreatedAt or
// ModifiedAt (it serves both), or (0, 0) for a zero time. This mirrors the
// zero-means-absent convention the on-disk format uses.
func ctimeParts(t time.Time) (uint32, uint32) {
	if t.IsZero() {
		return 0, 0
	}
	return uint32(t.Unix()), uint32(t.Nanosecond())
}

// CTimeParts returns the raw (sec, nsec) for the entry's ctime.
func (e *Entry) CTimeParts() (uint32, uint32) { return ctimeParts(e.CreatedAt) }

// MTimeParts returns the raw (sec, nsec) for the entry's mtime.
func (e *Entry) MTimeParts() (uint32, uint32) { return ctimeParts(e.ModifiedAt) }

// TreeExtensionEntry is one record of the cache-tree (TREE) extension.
type TreeExtensionEntry struct {
	// Path is the full path of the directory this record describes,
	// always ending in "/"; the root is "/".
	Path string
	// EntryCount is the number of index entries covered by this tree, or
	// -1 if the cached value is invalid.
	EntryCount int
	// SubtreeCount is the number of immediate subtrees.
	SubtreeCount int
	// Hash is the tree object name, only meaningful when EntryCount != -1.
	Hash objhash.ObjectID
}

// Valid reports whether the cached tree hash for this entry can be trusted.
func (e TreeExtensionEntry) Valid() bool {
	return e.EntryCount != -1
}

// Dir returns the directory this record describes with no trailing slash
// ("" for root).
func (e TreeExtensionEntry) Dir() string {
	if e.Path == "/" {
		return ""
	}
	if len(e.Path) == 0 {
		return ""
	}
	return e.Path[:len(e.Path)-1]
}

// ReucExtensionEntry is one record of the resolve-undo (REUC) extension.
type ReucExtensionEntry struct {
	Path string
	// Modes holds the octal stage modes for stage 1 (ancestor), 2 (ours)
	// and 3 (theirs), in that order. 0 means "absent".
	Modes [3]uint32
	// Hashes holds the corresponding object names. A hash is meaningful
	// only when the matching Modes entry is nonzero.
	Hashes [3]objhash.ObjectID
}

// Index is the fully parsed content of a v2/v3 index file.
type Index struct {
	Header Header

	// Active holds stage-0 entries plus stage-1 entries (so that a
	// conflict can be resolved later without rewriting the whole index).
	Active []*Entry

	// Conflicted holds every entry with a nonzero stage, keyed by the
	// entry's directory component.
	Conflicted map[string][]*Entry

	// Tree is the decoded cache-tree extension, or nil if absent.
	Tree []TreeExtensionEntry

	// ResolveUndo holds resolve-undo records keyed by directory (the
	// path's directory component, trailing separator stripped).
	ResolveUndo map[string][]ReucExtensionEntry
}
