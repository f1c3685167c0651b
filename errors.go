// errors.go - the one failure mode the public API can report.

package opl

import "errors"

// ErrInvalidSampleRate is returned by Setup when asked to build rate
// tables for a sample rate that can't produce a usable scale factor
// against the chip's native 49716 Hz clock (spec: implementations must
// pick refuse-or-saturate and document it — this one refuses).
var ErrInvalidSampleRate = errors.New("opl: invalid sample rate")
