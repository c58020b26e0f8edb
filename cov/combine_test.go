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
)

func TestSummarizeSamples(t *testing.T) {
	registry := testRegistry(t, testFai)
	t1 := Normalize(registry, "s1", []int64{10, 0}, 100, nil)
	t2 := Normalize(registry, "s2", []int64{5, 5}, 50, nil)
	summaries := SummarizeSamples([]*SampleTable{t1, t2})
	if len(summaries) != 2 {
		t.Fatal("SummarizeSamples length failed")
	}
	s1 := summaries[0]
	if s1.Sample != "s1" || s1.ContigsHit != 1 {
		t.Error("sample summary hits failed")
	}
	if !near(s1.TotalRPM, 100000) || !near(s1.MeanTPM, 500000) || !near(s1.MaxTPM, 1e6) {
		t.Error("sample summary metrics failed")
	}
	if !math.IsNaN(s1.MeanKurtosis) {
		t.Error("sample summary kurtosis failed")
	}
	s2 := summaries[1]
	if s2.ContigsHit != 2 || !near(s2.TotalRPM, 200000) {
		t.Error("sample summary hits 2 failed")
	}
	// s2 has RPK 5 for A and 2.5 for B, so A takes two thirds of the TPM
	// mass.
	if !near(s2.MaxTPM, 5.0/7.5*1e6) {
		t.Error("sample summary max failed")
	}
}

func TestSummarizeContigs(t *testing.T) {
	registry := testRegistry(t, testFai)
	t1 := Normalize(registry, "s1", []int64{10, 0}, 100, nil)
	t2 := Normalize(registry, "s2", []int64{5, 5}, 50, nil)
	summaries := SummarizeContigs(registry, []*SampleTable{t1, t2})
	if len(summaries) != 2 {
		t.Fatal("SummarizeContigs length failed")
	}
	a := summaries[0]
	if a.Contig != "A" || a.SamplesHit != 2 {
		t.Error("contig summary hits failed")
	}
	if !near(a.MeanTPM, (1e6+5.0/7.5*1e6)/2) || !near(a.MeanRPKM, 100000) {
		t.Error("contig summary means failed")
	}
	d := 1e6 - 5.0/7.5*1e6
	if !near(a.VarianceTPM, d*d/2) {
		t.Error("contig summary variance failed")
	}
	b := summaries[1]
	if b.Contig != "B" || b.SamplesHit != 1 {
		t.Error("contig summary hits 2 failed")
	}

	single := SummarizeContigs(registry, []*SampleTable{t1})
	if !math.IsNaN(single[0].VarianceTPM) {
		t.Error("single sample variance failed")
	}
	if !near(single[0].MeanTPM, 1e6) {
		t.Error("single sample mean failed")
	}
}
