// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// quartz is an introspection tool for quartz segment files.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/colseg/segfile"
	"github.com/quartzdb/quartz/colseg/strseg"
	"github.com/spf13/cobra"
)

var (
	dumpValues bool
	dumpLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "quartz [command] (flags)",
	Short: "quartz segment introspection tool",
	Long:  ``,
}

var segdumpCmd = &cobra.Command{
	Use:   "segdump <file>",
	Short: "print the contents of a segment file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSegdump,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(segdumpCmd)
	segdumpCmd.Flags().BoolVarP(
		&dumpValues, "values", "v", false, "print row values, not just lengths")
	segdumpCmd.Flags().IntVarP(
		&dumpLimit, "limit", "n", 0, "maximum number of rows to print (0, print all)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSegdump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	mgr, seg, err := segfile.Open(f, info.Size())
	if err != nil {
		return err
	}
	defer seg.Close()

	pin := mgr.Pin(seg.Block())
	dict := strseg.GetDictionary(seg, &pin)
	pin.Close()
	state := strseg.StateOf(seg)

	fmt.Printf("block size:     %d\n", mgr.BlockSize())
	fmt.Printf("rows:           %d\n", seg.Count())
	fmt.Printf("segment size:   %d\n", seg.SegmentSize())
	fmt.Printf("dictionary:     size=%d end=%d\n", dict.Size, dict.End)
	fmt.Printf("overflow blocks: %d\n", len(state.OnDiskBlocks()))

	limit := seg.Count()
	if dumpLimit > 0 && dumpLimit < limit {
		limit = dumpLimit
	}
	if limit == 0 {
		return nil
	}

	funcs := seg.Funcs()
	rows := colseg.NewStringVector(limit)
	defer rows.Close()
	scanState := funcs.InitScan(seg)
	defer scanState.Close()
	if err := funcs.Scan(seg, scanState, 0, limit, rows); err != nil {
		return err
	}
	for i := 0; i < limit; i++ {
		if dumpValues {
			fmt.Printf("%6d: %q\n", i, rows.Value(i))
		} else {
			fmt.Printf("%6d: %d bytes\n", i, len(rows.Value(i)))
		}
	}
	return nil
}
