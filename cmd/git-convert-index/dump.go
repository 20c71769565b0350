package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-git-tools/index5/format/index"
)

func dumpHeaderTo(w io.Writer, idx *index.Index) {
	fmt.Fprintf(w, "Signature: %s\n", idx.Header.Signature[:])
	fmt.Fprintf(w, "Version: %d\n", idx.Header.Version)
	fmt.Fprintf(w, "Number of entries: %d\n", idx.Header.EntryCount)
}

func dumpEntriesTo(w io.Writer, idx *index.Index) {
	for _, e := range idx.Active {
		dumpEntry(w, e)
	}
}

func dumpEntry(w io.Writer, e *index.Entry) {
	fmt.Fprintln(w, e.Path())

	csec, cnsec := e.CTimeParts()
	msec, mnsec := e.MTimeParts()
	fmt.Fprintf(w, "ctime: %d:%d\n", csec, cnsec)
	fmt.Fprintf(w, "mtime: %d:%d\n", msec, mnsec)
	fmt.Fprintf(w, "dev: %d ino: %d\n", e.Dev, e.Ino)
	fmt.Fprintf(w, "uid: %d gid: %d\n", e.UID, e.GID)
	fmt.Fprintf(w, "size: %d flags: %x\n", e.Size, e.Flags)
}

func dumpTreeTo(w io.Writer, idx *index.Index) {
	entries := make([]index.TreeExtensionEntry, len(idx.Tree))
	copy(entries, idx.Tree)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	for _, t := range entries {
		if !t.Valid() {
			fmt.Fprintf(w, "invalid %s (%d entries, %d subtrees)\n", t.Path, t.EntryCount, t.SubtreeCount)
			continue
		}
		fmt.Fprintf(w, "%s %s (%d entries, %d subtrees)\n", t.Hash, t.Path, t.EntryCount, t.SubtreeCount)
	}
}

func dumpReucTo(w io.Writer, idx *index.Index) {
	dirs := make([]string, 0, len(idx.ResolveUndo))
	for d := range idx.ResolveUndo {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	for _, d := range dirs {
		for _, r := range idx.ResolveUndo[d] {
			fmt.Fprintf(w, "Path: %s\n", r.Path)
			fmt.Fprintf(w, "Entrymode 1: %o Entrymode 2: %o Entrymode 3: %o\n", r.Modes[0], r.Modes[1], r.Modes[2])
			fmt.Fprintf(w, "Objectnames 1: %s Objectnames 2: %s Objectnames 3: %s\n", r.Hashes[0], r.Hashes[1], r.Hashes[2])
		}
	}
}
