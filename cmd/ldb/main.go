// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Command ldb is a minimal debug entry point over a lattice store,
// in the style of the teacher's cli/debug.go: thin wrappers around
// engine primitives with no independent logic of their own (§4.10).
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/latticedb/lattice/storage"
	"github.com/latticedb/lattice/storage/hlc"
)

func main() {
	dir := flag.String("dir", "", "data directory")
	flag.Parse()
	args := flag.Args()
	if *dir == "" || len(args) == 0 {
		usage()
	}

	eng, err := storage.Open(storage.Options{Dir: *dir})
	if err != nil {
		fatalf("open %s: %v", *dir, err)
	}
	defer eng.Close()

	switch args[0] {
	case "get":
		cmdGet(eng, args[1:])
	case "put":
		cmdPut(eng, args[1:])
	case "scan":
		cmdScan(eng, args[1:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ldb -dir=<path> {get|put|scan} ...")
	os.Exit(2)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseTimestamp(s string) hlc.Timestamp {
	wall, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatalf("invalid timestamp %q: %v", s, err)
	}
	return hlc.Timestamp{WallTime: wall}
}

func cmdGet(eng *storage.Store, args []string) {
	if len(args) != 2 {
		usage()
	}
	it, err := eng.NewIter(storage.IterOptions{})
	if err != nil {
		fatalf("new iter: %v", err)
	}
	defer it.Close()
	kv, intents, err := storage.MVCCGet(it, []byte(args[0]), parseTimestamp(args[1]), storage.ScanOptions{Consistent: true})
	if err != nil {
		fatalf("get: %v", err)
	}
	for _, intent := range intents {
		fmt.Fprintf(os.Stderr, "intent on %q\n", intent.Key)
	}
	if kv == nil {
		fmt.Println("<not found>")
		return
	}
	fmt.Printf("%s\n", storage.ValueDataBytes(kv.Value))
}

func cmdPut(eng *storage.Store, args []string) {
	if len(args) != 3 {
		usage()
	}
	ts := parseTimestamp(args[1])
	if err := storage.MVCCPut(eng, []byte(args[0]), ts, []byte(args[2]), nil); err != nil {
		fatalf("put: %v", err)
	}
}

func cmdScan(eng *storage.Store, args []string) {
	if len(args) != 3 {
		usage()
	}
	it, err := eng.NewIter(storage.IterOptions{})
	if err != nil {
		fatalf("new iter: %v", err)
	}
	defer it.Close()
	res, err := storage.MVCCScan(it, []byte(args[0]), []byte(args[1]), parseTimestamp(args[2]), storage.ScanOptions{Consistent: true})
	if err != nil {
		fatalf("scan: %v", err)
	}
	for _, kv := range res.KVs {
		fmt.Printf("%s -> %s\n", kv.Key, storage.ValueDataBytes(kv.Value))
	}
}
