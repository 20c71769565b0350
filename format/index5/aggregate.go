// Package index5 lays out the proposed v5 on-disk index format: entries
// reorganized by directory, per-directory aggregates, and per-record
// CRC-32 protection in place of a single trailing hash.
package index5

import (
	"sort"

	"github.com/go-git-tools/index5/format/index"
	"github.com/go-git-tools/index5/internal/objhash"
)

// DirEntry is the per-directory aggregate the v5 writer emits: file and
// subtree counts, the cached tree object name, and the conflict-record
// span for that directory.
type DirEntry struct {
	NFiles    uint32
	Flags     uint16
	CR        uint32
	NCR       uint32
	NSubtrees uint32
	NEntries  uint32
	ObjName   objhash.ObjectID
}

// ConflictRun is one conflicted path's stage-1/2/3 records, as encountered
// contiguously in the v2/v3 entry list.
type ConflictRun struct {
	Dir    string
	Name   string
	Modes  [3]uint32
	Hashes [3]objhash.ObjectID
}

// DirectorySet returns every directory the v5 output must have a row for,
// in ascending path order with "" (root) always present: every active
// entry's directory, every directory holding a conflicted entry, and every
// non-root directory named by the cache-tree extension. A directory named
// only by the cache-tree (zero active files) still gets a row, matching
// the aggregation rules in §4.3 against cache-tree data that can exist
// independently of any currently-staged file in that directory.
func DirectorySet(idx *index.Index) []string {
	seen := map[string]struct{}{"": {}}

	for _, e := range idx.Active {
		seen[e.Dir] = struct{}{}
	}
	for dir := range idx.Conflicted {
		seen[dir] = struct{}{}
	}
	for _, t := range idx.Tree {
		if dir := t.Dir(); dir != "" {
			seen[dir] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	return dirs
}

// MergeCacheTree folds the cache-tree extension's per-directory counts and
// object names into dirs. A directory the cache-tree never mentions is
// left untouched (zero entries/subtrees, all-zero object name).
func MergeCacheTree(dirs map[string]*DirEntry, tree []index.TreeExtensionEntry) {
	for _, t := range tree {
		d, ok := dirs[t.Dir()]
		if !ok {
			continue
		}
		d.NSubtrees = uint32(t.SubtreeCount)
		if t.Valid() {
			d.NEntries = uint32(t.EntryCount)
			d.ObjName = t.Hash
		} else {
			// entry_count == -1 has no unsigned on-disk representation;
			// the all-zero object name is the contract's invalidity
			// signal, so the count is left at zero rather than wrapped.
			d.NEntries = 0
			d.ObjName = objhash.Zero
		}
	}
}

// ConflictRuns groups a directory's conflicted entries (as stored in
// index.Index.Conflicted, which interleaves every conflicted path in that
// directory) into one run per path. The v2/v3 format always stores a
// conflicted path's stage 1/2/3 entries contiguously, so consecutive
// same-name entries are exactly one run.
func ConflictRuns(entries []*index.Entry) []ConflictRun {
	var runs []ConflictRun

	for _, e := range entries {
		stage := e.Stage()
		if stage == index.StageNone || stage > index.StageTheirs {
			continue
		}

		if len(runs) == 0 || runs[len(runs)-1].Name != e.Name {
			runs = append(runs, ConflictRun{Dir: e.Dir, Name: e.Name})
		}

		r := &runs[len(runs)-1]
		r.Modes[stage-1] = e.Mode
		r.Hashes[stage-1] = e.Hash
	}

	return runs
}

// path joins a directory and filename the way the v5 conflict record
// expects: "dir/file" with no leading separator when dir is root.
func (r ConflictRun) path() string {
	if r.Dir == "" {
		return r.Name
	}
	return r.Dir + "/" + r.Name
}
