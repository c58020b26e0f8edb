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

	"github.com/linsalrob/Koverage/paf"
)

func TestBinStats(t *testing.T) {
	registry := testRegistry(t, testFai)
	acc := NewAccumulator(registry, 250, nil, "s1")
	for start := int64(0); start < 10; start++ {
		acc.Add(&paf.Record{TName: "A", TStart: start, MapQ: 60})
	}
	for start := int64(500); start < 505; start++ {
		acc.Add(&paf.Record{TName: "A", TStart: start, MapQ: 60})
	}
	stats := acc.BinStats()
	if len(stats) != 2 {
		t.Fatal("BinStats length failed")
	}
	a := stats[0]
	if a.Contig != "A" || a.Length != 1000 || a.Count != 15 {
		t.Error("BinStats counts failed")
	}
	// Bin counts 10, 0, 5, 0, 0 across the five bins of contig A.
	if a.Mean != 3 || a.Median != 0 || a.Hitrate != 0.4 {
		t.Error("BinStats location failed")
	}
	if math.Abs(a.Variance-0.064) > 1e-12 {
		t.Errorf("BinStats variance failed: got %v", a.Variance)
	}
	b := stats[1]
	if b.Contig != "B" || b.Length != 2000 || b.Count != 0 ||
		b.Mean != 0 || b.Median != 0 || b.Hitrate != 0 || b.Variance != 0 {
		t.Error("BinStats empty contig failed")
	}
}

func TestBinStatsMedianEven(t *testing.T) {
	registry := testRegistry(t, "C\t900\t3\t80\t81\n")
	acc := NewAccumulator(registry, 300, nil, "s1")
	for start := int64(0); start < 4; start++ {
		acc.Add(&paf.Record{TName: "C", TStart: start, MapQ: 60})
	}
	acc.Add(&paf.Record{TName: "C", TStart: 300, MapQ: 60})
	acc.Add(&paf.Record{TName: "C", TStart: 301, MapQ: 60})
	c := acc.BinStats()[0]
	// Bin counts 4, 2, 0, 0: the even-length median takes the midpoint.
	if c.Median != 1 {
		t.Errorf("even median failed: got %v", c.Median)
	}
	if c.Mean != 1.5 || c.Hitrate != 0.5 {
		t.Error("even median stats failed")
	}
}
