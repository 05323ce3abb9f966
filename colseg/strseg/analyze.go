// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/internal/base"
)

// analyzeState accumulates input statistics for the compression selector.
type analyzeState struct {
	blockSize int

	count           int
	totalStringSize int
	overflowStrings int
}

func initAnalyze(blockSize int) colseg.AnalyzeState {
	return &analyzeState{blockSize: blockSize}
}

func analyze(state colseg.AnalyzeState, input *colseg.StringVector, count int) bool {
	s, ok := state.(*analyzeState)
	if !ok {
		panic(base.AssertionFailedf("strseg: analyze state is %T", state))
	}
	limit := StringBlockLimit(s.blockSize)
	s.count += count
	for i := 0; i < count; i++ {
		if input.IsNull(i) {
			continue
		}
		n := len(input.Value(i))
		s.totalStringSize += n
		if n >= limit {
			s.overflowStrings++
		}
	}
	return true
}

// finalAnalyze estimates the encoded size: one offset entry per row, the
// inline string bytes, and a marker per overflow string. The estimate feeds
// the compression selector and need not be exact, only monotonic with
// encoded size.
func finalAnalyze(state colseg.AnalyzeState) int {
	s, ok := state.(*analyzeState)
	if !ok {
		panic(base.AssertionFailedf("strseg: analyze state is %T", state))
	}
	return s.count*4 + s.totalStringSize + s.overflowStrings*bigStringMarkerSize
}
