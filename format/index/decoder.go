package index

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-git-tools/index5/internal/binary"
	"github.com/go-git-tools/index5/internal/digest"
	"github.com/go-git-tools/index5/internal/objhash"
)

var (
	treeExtTag = []byte("TREE")
	reucExtTag = []byte("REUC")
)

// Decoder reads and decodes a v2/v3 index file from an input stream,
// verifying the trailing SHA-1 as it goes.
type Decoder struct {
	d *digest.Reader
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{d: digest.NewReader(r)}
}

// Decode reads the whole index from the decoder's input, returning the
// parsed result. The trailing SHA-1 is verified before this method returns;
// ErrChecksumMismatch is returned (with no other side effect) if it does
// not match.
func (dec *Decoder) Decode() (*Index, error) {
	idx := &Index{
		Conflicted:  map[string][]*Entry{},
		ResolveUndo: map[string][]ReucExtensionEntry{},
	}

	header, err := dec.readHeader()
	if err != nil {
		return nil, err
	}
	idx.Header = header

	for i := uint32(0); i < header.EntryCount; i++ {
		e, err := dec.readEntry(header.Version)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = fmt.Errorf("%w: %v", ErrTruncatedInput, err)
			}
			return nil, fmt.Errorf("index: reading entry %d: %w", i, err)
		}

		switch stage := e.Stage(); stage {
		case StageNone:
			idx.Active = append(idx.Active, e)
		case StageAncestor:
			idx.Active = append(idx.Active, e)
			idx.Conflicted[e.Dir] = append(idx.Conflicted[e.Dir], e)
		default:
			idx.Conflicted[e.Dir] = append(idx.Conflicted[e.Dir], e)
		}
	}

	if err := dec.readExtensions(idx); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("%w: %v", ErrTruncatedInput, err)
		}
		return nil, err
	}

	return idx, nil
}

func (dec *Decoder) readHeader() (Header, error) {
	var h Header

	if _, err := io.ReadFull(dec.d, h.Signature[:]); err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	if h.Signature != signature {
		return h, ErrBadSignature
	}

	version, err := binary.ReadUint32(dec.d)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	if version != 2 && version != 3 {
		return h, ErrUnsupportedVersion
	}
	h.Version = version

	count, err := binary.ReadUint32(dec.d)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	h.EntryCount = count

	return h, nil
}

func (dec *Decoder) readEntry(version uint32) (*Entry, error) {
	e := &Entry{}

	var csec, cnsec, msec, mnsec uint32
	flow := []interface{}{
		&csec, &cnsec,
		&msec, &mnsec,
		&e.Dev,
		&e.Ino,
		&e.Mode,
		&e.UID,
		&e.GID,
		&e.Size,
	}
	if err := binary.Read(dec.d, flow...); err != nil {
		return nil, err
	}

	if _, err := e.Hash.ReadFrom(dec.d); err != nil {
		return nil, err
	}

	if err := binary.Read(dec.d, &e.Flags); err != nil {
		return nil, err
	}

	if csec != 0 || cnsec != 0 {
		e.CreatedAt = time.Unix(int64(csec), int64(cnsec))
	}
	if msec != 0 || mnsec != 0 {
		e.ModifiedAt = time.Unix(int64(msec), int64(mnsec))
	}

	k := 5
	if version == 3 {
		var ext uint16
		if err := binary.Read(dec.d, &ext); err != nil {
			return nil, err
		}
		e.ExtendedFlags = ext
		e.HasExtended = true
		k = 1
	}

	nameBytes, err := binary.ReadUntil(dec.d, 0)
	if err != nil {
		return nil, err
	}
	r := len(nameBytes) + 1

	pad := (8 - (r+k)%8) - 1
	if pad > 0 {
		if err := binary.Discard(dec.d, pad); err != nil {
			return nil, err
		}
	}

	name := string(nameBytes)
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		e.Dir = name[:i]
		e.Name = name[i+1:]
	} else {
		e.Dir = ""
		e.Name = name
	}

	return e, nil
}

// readExtensions decodes the optional TREE and REUC trailing extensions and
// then verifies the 20-byte trailer. Whichever lookahead peek does not match
// a known extension tag already holds the first bytes of the trailer, still
// unconsumed; verifyChecksum reads them back out in the raw, non-hashing
// path so they land in the comparison rather than the digest.
func (dec *Decoder) readExtensions(idx *Index) error {
	tag, err := dec.d.PeekRaw(4)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}

	if bytes.Equal(tag, treeExtTag) {
		if err := dec.d.Absorb(tag); err != nil {
			return err
		}
		tree, err := dec.readTreeExtension()
		if err != nil {
			return err
		}
		idx.Tree = tree

		if tag, err = dec.d.PeekRaw(4); err != nil {
			return fmt.Errorf("%w: %v", ErrTruncatedInput, err)
		}
	}

	if !bytes.Equal(tag, reucExtTag) {
		// No (further) extension follows: these 4 peeked-but-unconsumed
		// bytes are the head of the trailer.
		return dec.verifyChecksum()
	}

	if err := dec.d.Absorb(tag); err != nil {
		return err
	}
	reuc, err := dec.readReucExtension()
	if err != nil {
		return err
	}
	idx.ResolveUndo = reuc

	return dec.verifyChecksum()
}

// verifyChecksum compares the running digest against the trailing 20-byte
// SHA-1, read raw (never hashed). Because a non-matching PeekRaw never
// consumes bytes, any trailer bytes a caller already peeked at are still
// sitting in the stream and are read here exactly once.
func (dec *Decoder) verifyChecksum() error {
	expected := dec.d.Sum()

	var got [objhash.Size]byte
	if _, err := io.ReadFull(rawReader{dec.d}, got[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}

	if !bytes.Equal(expected, got[:]) {
		return ErrChecksumMismatch
	}

	return nil
}

// rawReader adapts digest.Reader.ReadRaw to io.Reader.
type rawReader struct{ d *digest.Reader }

func (r rawReader) Read(p []byte) (int, error) { return r.d.ReadRaw(p) }

func (dec *Decoder) readTreeExtension() ([]TreeExtensionEntry, error) {
	length, err := binary.ReadUint32(dec.d)
	if err != nil {
		return nil, err
	}

	lr := io.LimitReader(dec.d, int64(length))
	br := &limitByteReader{r: lr}

	var entries []TreeExtensionEntry

	type frame struct {
		name      string
		remaining int
	}
	var stack []frame

	for {
		pathBytes, err := binary.ReadUntil(br, 0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry path: %v", ErrMalformedExtension, err)
		}
		name := string(pathBytes)

		for len(stack) > 0 && stack[len(stack)-1].remaining == 0 {
			stack = stack[:len(stack)-1]
		}

		// The root record (name "") never contributes a path segment of
		// its own; every other frame on the stack is a still-open ancestor
		// directory.
		var full strings.Builder
		for _, f := range stack {
			if f.name == "" {
				continue
			}
			full.WriteString(f.name)
			full.WriteByte('/')
		}
		full.WriteString(name)
		full.WriteByte('/')

		countBytes, err := binary.ReadUntil(br, ' ')
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry count: %v", ErrMalformedExtension, err)
		}
		count, err := strconv.Atoi(string(countBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry count: %v", ErrMalformedExtension, err)
		}

		subtreeBytes, err := binary.ReadUntil(br, '\n')
		if err != nil {
			return nil, fmt.Errorf("%w: tree subtree count: %v", ErrMalformedExtension, err)
		}
		subtrees, err := strconv.Atoi(string(subtreeBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: tree subtree count: %v", ErrMalformedExtension, err)
		}

		entry := TreeExtensionEntry{
			Path:         full.String(),
			EntryCount:   count,
			SubtreeCount: subtrees,
		}

		if count != -1 {
			if _, err := entry.Hash.ReadFrom(br); err != nil {
				return nil, fmt.Errorf("%w: tree entry hash: %v", ErrMalformedExtension, err)
			}
		}

		entries = append(entries, entry)

		// The root's own remaining-subtree count is never decremented: it
		// has nothing above it to return to, so it stays on the stack for
		// the rest of the extension.
		if len(stack) > 0 && stack[len(stack)-1].name != "" {
			stack[len(stack)-1].remaining--
		}
		stack = append(stack, frame{name: name, remaining: subtrees})
	}

	if br.n != int64(length) {
		return nil, fmt.Errorf("%w: TREE extension declared %d bytes, consumed %d", ErrMalformedExtension, length, br.n)
	}

	return entries, nil
}

func (dec *Decoder) readReucExtension() (map[string][]ReucExtensionEntry, error) {
	length, err := binary.ReadUint32(dec.d)
	if err != nil {
		return nil, err
	}

	lr := io.LimitReader(dec.d, int64(length))
	br := &limitByteReader{r: lr}

	out := map[string][]ReucExtensionEntry{}

	for {
		pathBytes, err := binary.ReadUntil(br, 0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reuc path: %v", ErrMalformedExtension, err)
		}

		entry := ReucExtensionEntry{Path: string(pathBytes)}

		for i := 0; i < 3; i++ {
			modeBytes, err := binary.ReadUntil(br, 0)
			if err != nil {
				return nil, fmt.Errorf("%w: reuc mode: %v", ErrMalformedExtension, err)
			}
			mode, err := strconv.ParseUint(string(modeBytes), 8, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: reuc mode: %v", ErrMalformedExtension, err)
			}
			entry.Modes[i] = uint32(mode)
		}

		for i := 0; i < 3; i++ {
			if entry.Modes[i] == 0 {
				continue
			}
			if _, err := entry.Hashes[i].ReadFrom(br); err != nil {
				return nil, fmt.Errorf("%w: reuc hash: %v", ErrMalformedExtension, err)
			}
		}

		dir := reucDir(entry.Path)
		out[dir] = append(out[dir], entry)
	}

	if br.n != int64(length) {
		return nil, fmt.Errorf("%w: REUC extension declared %d bytes, consumed %d", ErrMalformedExtension, length, br.n)
	}

	return out, nil
}

// reucDir returns the directory component of a resolve-undo path: the path
// with its file component (and the one trailing separator that divides
// them) stripped, "" for a root-level path.
func reucDir(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// limitByteReader adapts an io.Reader (already bounded by io.LimitReader) to
// io.ByteReader for use with binary.ReadUntil, tracking exactly how many
// bytes have been consumed so callers can confirm the extension's declared
// length was exactly exhausted.
type limitByteReader struct {
	r io.Reader
	n int64
}

func (b *limitByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := b.r.Read(buf[:])
	b.n += int64(n)
	if n == 1 {
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// Read implements io.Reader so a hash can be read in one call (via
// objhash.ObjectID.ReadFrom) instead of byte by byte.
func (b *limitByteReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	return n, err
}
