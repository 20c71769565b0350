package index5

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-git-tools/index5/format/index"
)

func u32At(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off : off+4]) }
func u16At(b []byte, off int) uint16 { return binary.BigEndian.Uint16(b[off : off+2]) }

func TestEncodeEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := &index.Index{Conflicted: map[string][]*index.Entry{}}

	out, err := Encode(idx)
	require.NoError(t, err)

	assert.Equal(t, []byte("DIRC"), out[0:4])
	assert.Equal(t, uint32(5), u32At(out, 4))
	assert.Equal(t, uint32(1), u32At(out, 8)) // n_dirs: root only
	assert.Equal(t, uint32(0), u32At(out, 12))
	assert.Equal(t, uint32(0), u32At(out, 16)) // fanout_base

	headerCRC := u32At(out, 20)
	assert.Equal(t, crc32.ChecksumIEEE(out[0:20]), headerCRC)

	// Fake dir offset table: one slot, now backpatched to the root record.
	rootOffset := u32At(out, HeaderSize)
	assert.EqualValues(t, HeaderSize+4, rootOffset)

	// Root path is a bare NUL.
	assert.Equal(t, byte(0), out[rootOffset])
	dataOffset := int(rootOffset) + 1

	foffset := u32At(out, dataOffset+2)
	fileoffsetbeginning := HeaderSize + 4 + 1 + (2 + 6*4 + 20 + 4)
	assert.EqualValues(t, fileoffsetbeginning, foffset)
	assert.EqualValues(t, fileoffsetbeginning, len(out))
}

func TestEncodeSingleRootEntry(t *testing.T) {
	t.Parallel()

	e := &index.Entry{Name: "README", Hash: hashOf(0x55)}
	idx := &index.Index{
		Active:     []*index.Entry{e},
		Conflicted: map[string][]*index.Entry{},
	}

	out, err := Encode(idx)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), u32At(out, 8))  // n_dirs
	assert.Equal(t, uint32(1), u32At(out, 12)) // n_files

	rootOffset := u32At(out, HeaderSize)
	dataOffset := int(rootOffset) + 1 // past the root's "\0" path byte
	nfiles := u32At(out, dataOffset+2+4*4)
	assert.Equal(t, uint32(1), nfiles)

	fileoffsetbeginning := dataOffset + (2 + 6*4 + 20 + 4)
	fileTableOffset := u32At(out, fileoffsetbeginning)

	foffset := u32At(out, dataOffset+2)
	assert.EqualValues(t, fileoffsetbeginning, foffset) // this directory's files start at table index 0

	fileRecordOffset := int(fileTableOffset)
	name := out[fileRecordOffset : fileRecordOffset+6]
	assert.Equal(t, "README", string(name))
	assert.Equal(t, byte(0), out[fileRecordOffset+6])
}

func TestEncodeSortsEntriesByDirectoryThenName(t *testing.T) {
	t.Parallel()

	idx := &index.Index{
		Active: []*index.Entry{
			{Dir: "src", Name: "b.c", Hash: hashOf(2)},
			{Dir: "src", Name: "a.c", Hash: hashOf(1)},
		},
		Conflicted: map[string][]*index.Entry{},
	}

	out, err := Encode(idx)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), u32At(out, 8)) // root + src
	assert.Equal(t, uint32(2), u32At(out, 12))

	dirOffsets := []uint32{u32At(out, HeaderSize), u32At(out, HeaderSize+4)}
	// root ("") sorts before "src".
	rootPath := out[dirOffsets[0]]
	assert.Equal(t, byte(0), rootPath)

	srcStart := int(dirOffsets[1])
	assert.Equal(t, "src/", string(out[srcStart:srcStart+4]))

	// Within "src", a.c sorts before b.c although it was staged second.
	fileTable := srcStart + len("src/\x00") + (2 + 6*4 + 20 + 4)
	first := int(u32At(out, fileTable))
	second := int(u32At(out, fileTable+4))
	assert.Equal(t, "a.c", string(out[first:first+3]))
	assert.Equal(t, "b.c", string(out[second:second+3]))
}

func TestEncodeConflictRunSetsCRAndNCR(t *testing.T) {
	t.Parallel()

	ours := &index.Entry{Dir: "", Name: "x.go", Flags: uint16(index.StageOurs) << 12, Hash: hashOf(9)}
	theirs := &index.Entry{Dir: "", Name: "x.go", Flags: uint16(index.StageTheirs) << 12, Hash: hashOf(10)}

	idx := &index.Index{
		Conflicted: map[string][]*index.Entry{"": {ours, theirs}},
	}

	out, err := Encode(idx)
	require.NoError(t, err)

	rootOffset := u32At(out, HeaderSize)
	dataOffset := int(rootOffset) + 1

	// No active files, so the conflict record starts right where the
	// (empty) file offset table would begin.
	cr := u32At(out, dataOffset+2+4)
	assert.EqualValues(t, dataOffset+(2+6*4+20+4), cr)

	ncr := u32At(out, dataOffset+2+4+4)
	assert.Equal(t, uint32(1), ncr) // one run covering both stages
}

func TestEncodeMergesCacheTreeObjName(t *testing.T) {
	t.Parallel()

	idx := &index.Index{
		Conflicted: map[string][]*index.Entry{},
		Tree: []index.TreeExtensionEntry{
			{Path: "/", EntryCount: 0, SubtreeCount: 0, Hash: hashOf(0x42)},
		},
	}

	out, err := Encode(idx)
	require.NoError(t, err)

	rootOffset := u32At(out, HeaderSize)
	dataOffset := int(rootOffset) + 1
	objNameOffset := dataOffset + 2 + 4*6
	assert.Equal(t, hashOf(0x42).Bytes(), out[objNameOffset:objNameOffset+20])
}
