// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package cov

import (
	"github.com/linsalrob/Koverage/paf"
)

// A RecordFilter is a predicate over alignment records; true keeps the
// record. Filters compose with ComposeFilters and are applied by the
// accumulator, after the record has counted toward the observed total.
type RecordFilter func(*paf.Record) bool

// KeepPrimary is a filter for removing secondary alignments, based on
// the tp tag; untagged records count as primary.
func KeepPrimary(rec *paf.Record) bool {
	return rec.IsPrimary()
}

// MinMapQ returns a filter for removing records below the given mapping
// quality.
func MinMapQ(min byte) RecordFilter {
	return func(rec *paf.Record) bool { return rec.MapQ >= min }
}

// MinBlockLen returns a filter for removing records whose alignment
// block spans fewer bases than the given length.
func MinBlockLen(min int64) RecordFilter {
	return func(rec *paf.Record) bool { return rec.BlockLen >= min }
}

// ComposeFilters combines filters into a single predicate that keeps a
// record only when every filter does.
func ComposeFilters(filters ...RecordFilter) RecordFilter {
	return func(rec *paf.Record) bool {
		for _, f := range filters {
			if !f(rec) {
				return false
			}
		}
		return true
	}
}
