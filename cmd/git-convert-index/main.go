// Command git-convert-index reads a v2/v3 git index, optionally dumps parts
// of its parsed content, and writes the same content back out as a v5
// index file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git-tools/index5/format/index"
	"github.com/go-git-tools/index5/format/index5"
)

func main() {
	var dumpHeader, dumpEntries, dumpTree, dumpReuc bool
	flag.BoolVar(&dumpHeader, "h", false, "print the index header")
	flag.BoolVar(&dumpEntries, "i", false, "print index entries")
	flag.BoolVar(&dumpTree, "c", false, "print the cache-tree extension")
	flag.BoolVar(&dumpReuc, "u", false, "print the resolve-undo extension")
	flag.Parse()

	if err := run(dumpHeader, dumpEntries, dumpTree, dumpReuc); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(1)
	}
}

func run(dumpHeader, dumpEntries, dumpTree, dumpReuc bool) error {
	inPath := filepath.Join(".git", "index")
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	idx, err := index.NewDecoder(in).Decode()
	if err != nil {
		return err
	}

	if dumpHeader {
		dumpHeaderTo(os.Stdout, idx)
	}
	if dumpEntries {
		dumpEntriesTo(os.Stdout, idx)
	}
	if dumpTree {
		dumpTreeTo(os.Stdout, idx)
	}
	if dumpReuc {
		dumpReucTo(os.Stdout, idx)
	}

	out, err := index5.Encode(idx)
	if err != nil {
		return err
	}

	return writeOutput(out)
}

func writeOutput(data []byte) error {
	outPath := filepath.Join(".git", "index-v5")
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
