// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package paf

import (
	"github.com/linsalrob/Koverage/utils"
)

// A Record is one alignment line of a PAF file: the twelve mandatory
// columns, plus any optional SAM-style tags. Records are transient;
// they are consumed one at a time and never retained by the coverage
// reducers.
type Record struct {
	QName    string
	QLen     int64
	QStart   int64
	QEnd     int64
	Strand   byte
	TName    string
	TLen     int64
	TStart   int64
	TEnd     int64
	Matches  int64
	BlockLen int64
	MapQ     byte
	Tags     utils.SmallMap
}

var (
	// TP is the minimap2 alignment type tag (P/I primary, S secondary).
	TP = utils.Intern("tp")
)

// IsPrimary reports whether the record is a primary alignment. Records
// without a tp tag count as primary, so plain PAF from aligners that do
// not emit the tag is unaffected by primary-only filtering.
func (rec *Record) IsPrimary() bool {
	if value, found := rec.Tags.Get(TP); found {
		b, ok := value.(byte)
		return !ok || b != 'S'
	}
	return true
}
