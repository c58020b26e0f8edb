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
	"math"
	"testing"

	"github.com/linsalrob/Koverage/depth"
)

func TestNormalize(t *testing.T) {
	registry := testRegistry(t, testFai)
	table := Normalize(registry, "s1", []int64{10, 0}, 100, nil)
	if table.Sample != "s1" || len(table.Rows) != 2 {
		t.Fatal("Normalize shape failed")
	}
	a := table.Rows[0]
	if a.Sample != "s1" || a.Contig != "A" {
		t.Error("Normalize row identity failed")
	}
	if !near(a.RPK, 10) || !near(a.RPM, 100000) || !near(a.RPKM, 100000) || !near(a.TPM, 1e6) {
		t.Error("Normalize metrics failed")
	}
	if !math.IsNaN(a.Kurtosis) {
		t.Error("Normalize kurtosis default failed")
	}
	b := table.Rows[1]
	if b.Contig != "B" || b.RPK != 0 || b.RPM != 0 || b.RPKM != 0 || b.TPM != 0 {
		t.Error("Normalize zero row failed")
	}
}

func TestNormalizeTPMSum(t *testing.T) {
	registry := testRegistry(t, testFai)
	table := Normalize(registry, "s1", []int64{3, 7}, 10, nil)
	var sum float64
	for _, row := range table.Rows {
		sum += row.TPM
	}
	if math.Abs(sum-1e6) > 1e-3 {
		t.Errorf("TPM sum failed: got %v", sum)
	}
	// RPK 3 for A and 3.5 for B split the TPM mass 6:7.
	if !near(table.Rows[0].TPM*7, table.Rows[1].TPM*6) {
		t.Error("TPM split failed")
	}
}

func TestNormalizeZeroTotal(t *testing.T) {
	registry := testRegistry(t, testFai)
	table := Normalize(registry, "s1", []int64{4, 0}, 0, nil)
	a := table.Rows[0]
	if !near(a.RPK, 4) {
		t.Error("zero total RPK failed")
	}
	for i, row := range table.Rows {
		if row.RPM != 0 || row.RPKM != 0 || row.TPM != 0 {
			t.Errorf("zero total row %v failed", i+1)
		}
	}
}

func TestNormalizeKurtosis(t *testing.T) {
	registry := testRegistry(t, testFai)
	config := testCovConfig(t)
	reducer := depth.NewReducer(registry, config.Buckets, "s1")
	for pos := int64(1); pos <= 500; pos++ {
		reducer.Add(depth.Record{Contig: "A", Pos: pos, Depth: 2})
	}
	stats := reducer.Finish()
	table := Normalize(registry, "s1", []int64{1, 0}, 10, stats)
	if math.Abs(table.Rows[0].Kurtosis+2) > 1e-9 {
		t.Errorf("kurtosis carry failed: got %v", table.Rows[0].Kurtosis)
	}
	if !math.IsNaN(table.Rows[1].Kurtosis) {
		t.Error("kurtosis NaN carry failed")
	}
}
