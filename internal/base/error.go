// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrCorruption is a marker error for corrupted persisted state: damaged
// metadata records, impossible lengths or block pointers read back from
// disk. Errors carrying this mark can be detected with errors.Is.
var ErrCorruption = errors.New("quartz: corruption")

// CorruptionErrorf formats an error with the ErrCorruption mark.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError adds the ErrCorruption mark to an existing error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// AssertionFailedf reports an internal invariant violation. It exists so call
// sites don't need to import cockroachdb/errors just for assertions.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}
