// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/stretchr/testify/require"
)

// TestDataDriven exercises the segment lifecycle through a command
// language:
//
//	init block-size=<n>     create a fresh transient segment
//	append                  append input lines; "<null>" appends a null,
//	                        "big:<n>" appends a generated n-byte value
//	state                   print segment and dictionary state
//	remaining               print the remaining dictionary space
//	scan [start=<r>] [count=<n>]
//	select rows=(i,j,...) [start=<r>]
//	fetch row=<r>
//	finalize                run FinalizeAppend, print the resulting size
func TestDataDriven(t *testing.T) {
	var mgr *bufmgr.Manager
	var funcs *colseg.CompressionFuncs
	var seg *colseg.ColumnSegment
	var appended []string
	closeSeg := func() {
		if seg != nil {
			seg.Close()
			seg = nil
		}
	}
	defer closeSeg()

	formatValue := func(v []byte) string {
		if len(v) <= 20 {
			return fmt.Sprintf("%q", v)
		}
		return fmt.Sprintf("(%d bytes)", len(v))
	}

	datadriven.RunTest(t, "testdata/strseg", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			closeSeg()
			blockSize := 4096
			if td.HasArg("block-size") {
				td.ScanArgs(t, "block-size", &blockSize)
			}
			mgr = bufmgr.New(bufmgr.Options{BlockSize: blockSize})
			var err error
			funcs, err = colseg.GetFuncs(colseg.CompressionUncompressed, colseg.PhysicalString)
			require.NoError(t, err)
			seg = colseg.NewTransientSegment(mgr, funcs)
			appended = appended[:0]
			return fmt.Sprintf("block-size=%d string-limit=%d", blockSize, StringBlockLimit(blockSize))

		case "append":
			lines := strings.Split(strings.TrimSuffix(td.Input, "\n"), "\n")
			input := colseg.NewStringVector(len(lines))
			values := make([]string, len(lines))
			for i, line := range lines {
				switch {
				case line == "<null>":
					input.SetNull(i)
				case strings.HasPrefix(line, "big:"):
					var n int
					_, err := fmt.Sscanf(line, "big:%d", &n)
					require.NoError(t, err)
					values[i] = testValue(n)
					input.Set(i, []byte(values[i]))
				default:
					values[i] = line
					input.Set(i, []byte(line))
				}
			}
			n, err := funcs.Append(seg, input, 0, len(lines))
			require.NoError(t, err)
			appended = append(appended, values[:n]...)
			return fmt.Sprintf("appended %d rows (count=%d)", n, seg.Count())

		case "state":
			pin := mgr.Pin(seg.Block())
			dict := GetDictionary(seg, &pin)
			pin.Close()
			state := StateOf(seg)
			chain := 0
			for b := state.head; b != nil; b = b.next {
				chain++
			}
			return fmt.Sprintf("count=%d segment-size=%d dict-size=%d dict-end=%d overflow-chain=%d on-disk=%d",
				seg.Count(), seg.SegmentSize(), dict.Size, dict.End, chain, len(state.OnDiskBlocks()))

		case "remaining":
			pin := mgr.Pin(seg.Block())
			defer pin.Close()
			return fmt.Sprintf("%d", RemainingSpace(seg, &pin))

		case "scan":
			start, count := 0, seg.Count()
			if td.HasArg("start") {
				td.ScanArgs(t, "start", &start)
			}
			if td.HasArg("count") {
				td.ScanArgs(t, "count", &count)
			}
			state := funcs.InitScan(seg)
			defer state.Close()
			result := colseg.NewStringVector(count)
			defer result.Close()
			require.NoError(t, funcs.Scan(seg, state, start, count, result))
			var sb strings.Builder
			for i := 0; i < count; i++ {
				require.Equal(t, appended[start+i], string(result.Value(i)))
				fmt.Fprintf(&sb, "%d: %s\n", start+i, formatValue(result.Value(i)))
			}
			return sb.String()

		case "select":
			rowsArg, ok := td.Arg("rows")
			require.True(t, ok)
			start := 0
			if td.HasArg("start") {
				td.ScanArgs(t, "start", &start)
			}
			var sel []int
			for _, v := range rowsArg.Vals {
				r, err := strconv.Atoi(v)
				require.NoError(t, err)
				sel = append(sel, r)
			}
			state := funcs.InitScan(seg)
			defer state.Close()
			result := colseg.NewStringVector(len(sel))
			defer result.Close()
			require.NoError(t, funcs.Select(seg, state, start, sel, result))
			var sb strings.Builder
			for i, s := range sel {
				require.Equal(t, appended[start+s], string(result.Value(i)))
				fmt.Fprintf(&sb, "%d: %s\n", i, formatValue(result.Value(i)))
			}
			return sb.String()

		case "fetch":
			var row int
			td.ScanArgs(t, "row", &row)
			state := colseg.NewFetchState()
			defer state.Close()
			result := colseg.NewStringVector(1)
			defer result.Close()
			require.NoError(t, funcs.FetchRow(seg, state, row, result, 0))
			require.Equal(t, appended[row], string(result.Value(0)))
			return fmt.Sprintf("%d: %s", row, formatValue(result.Value(0)))

		case "finalize":
			return fmt.Sprintf("segment-size=%d", funcs.FinalizeAppend(seg))

		default:
			td.Fatalf(t, "unknown command: %s", td.Cmd)
			return ""
		}
	})
}

// testValue generates a deterministic n-byte value.
func testValue(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a' + byte(i%26)
	}
	return string(b)
}
