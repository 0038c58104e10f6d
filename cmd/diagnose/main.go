// Diagnostic tool for analyzing HDF5 files: walks the group hierarchy by
// default, or reads a batch of datasets when -batch is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/h5coro-go/h5coro/hdf5"
)

func main() {
	batch := flag.String("batch", "", "comma-separated dataset paths to read as a batch instead of walking the file")
	remote := flag.Bool("url", false, "treat the argument as an HTTP(S) URL instead of a local path")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: diagnose [-batch path1,path2,...] [-url] <file.h5|url>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	filename := args[0]
	fmt.Printf("=== Analyzing %s ===\n\n", filename)

	var f *hdf5.File
	var err error
	if *remote {
		f, err = hdf5.OpenURL(filename)
	} else {
		f, err = hdf5.Open(filename)
	}
	if err != nil {
		fmt.Printf("ERROR: Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Superblock version: %d\n", f.Version())
	fmt.Println()

	if *batch != "" {
		runBatch(f, strings.Split(*batch, ","))
		return
	}

	walkGroup(f.Root(), "", 0)
}

func runBatch(f *hdf5.File, paths []string) {
	requests := make([]hdf5.Request, len(paths))
	for i, p := range paths {
		requests[i] = hdf5.Request{Path: strings.TrimSpace(p)}
	}

	results, err := f.Batch(context.Background(), requests)
	if err != nil {
		fmt.Printf("ERROR: batch canceled: %v\n", err)
		os.Exit(1)
	}

	for _, req := range requests {
		res := results[req.Path]
		if res.Err != nil {
			fmt.Printf("%s: ERROR: %v\n", req.Path, res.Err)
			continue
		}
		fmt.Printf("%s: shape=%v dtype=%v bytes=%d attrs=%v\n",
			req.Path, res.Shape, res.Datatype, len(res.Data), res.Attrs)
	}
}

func walkGroup(g *hdf5.Group, indent string, depth int) {
	if depth > 20 {
		fmt.Printf("%s[MAX DEPTH REACHED]\n", indent)
		return
	}

	members, err := g.Members()
	if err != nil {
		fmt.Printf("%sERROR getting members: %v\n", indent, err)
		return
	}

	attrs := g.Attrs()
	fmt.Printf("%sGroup %q:\n", indent, g.Path())
	fmt.Printf("%s  Members: %d\n", indent, len(members))
	fmt.Printf("%s  Attrs: %v\n", indent, attrs)

	if len(members) == 0 && len(attrs) == 0 && depth > 0 {
		fmt.Printf("%s  [EMPTY - no members or attrs]\n", indent)
	}

	for _, name := range members {
		// Try as group first
		subg, err := g.OpenGroup(name)
		if err == nil {
			walkGroup(subg, indent+"  ", depth+1)
			continue
		}

		// Try as dataset
		ds, err := g.OpenDataset(name)
		if err == nil {
			fmt.Printf("%s  Dataset %q:\n", indent, name)
			fmt.Printf("%s    Shape: %v\n", indent, ds.Shape())
			fmt.Printf("%s    Attrs: %v\n", indent, ds.Attrs())
			continue
		}

		fmt.Printf("%s  %q: ERROR opening as group or dataset\n", indent, name)
		fmt.Printf("%s    Group error: %v\n", indent, err)
	}
}
