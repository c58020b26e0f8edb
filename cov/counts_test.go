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
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linsalrob/Koverage/depth"
	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/paf"
)

const testFai = "A\t1000\t3\t80\t81\nB\t2000\t1016\t80\t81\n"

func testRegistry(t testing.TB, fai string) *fasta.Registry {
	t.Helper()
	name := filepath.Join(t.TempDir(), "ref.fa.fai")
	if err := os.WriteFile(name, []byte(fai), 0600); err != nil {
		t.Fatal(err)
	}
	registry, err := fasta.ParseFai(name)
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func testCovConfig(t testing.TB) *Config {
	t.Helper()
	buckets, err := depth.NewConfig(depth.DefaultBuckets)
	if err != nil {
		t.Fatal(err)
	}
	return &Config{BinWidth: 250, Buckets: buckets}
}

func pafLine(qname, tname string, tstart int64, mapq byte, tags string) string {
	line := fmt.Sprintf("%v\t100\t0\t100\t+\t%v\t1000\t%v\t%v\t95\t100\t%v",
		qname, tname, tstart, tstart+100, mapq)
	if tags != "" {
		line += "\t" + tags
	}
	return line + "\n"
}

func near(got, want float64) bool {
	return math.Abs(got-want) <= 1e-9*math.Max(1, math.Abs(want))
}

func TestAccumulator(t *testing.T) {
	registry := testRegistry(t, testFai)
	acc := NewAccumulator(registry, 250, nil, "s1")
	acc.Add(&paf.Record{TName: "A", TStart: 0, MapQ: 60})
	acc.Add(&paf.Record{TName: "A", TStart: 999, MapQ: 60})
	acc.Add(&paf.Record{TName: "B", TStart: 500, MapQ: 60})
	acc.Add(&paf.Record{TName: "chrX", TStart: 0, MapQ: 60})
	acc.Add(&paf.Record{TName: "A", TStart: 1000, MapQ: 60})
	acc.Add(&paf.Record{TName: "A", TStart: -1, MapQ: 60})
	counts := acc.Counts()
	if counts[0] != 2 || counts[1] != 1 {
		t.Error("counts failed")
	}
	if acc.Total() != 6 {
		t.Error("total failed")
	}
	if unknown, outOfRange := acc.Skipped(); unknown != 1 || outOfRange != 2 {
		t.Error("skip counters failed")
	}
	if acc.Filtered() != 0 {
		t.Error("filtered counter failed")
	}
}

func TestAccumulatorFilters(t *testing.T) {
	registry := testRegistry(t, testFai)
	filter := ComposeFilters(KeepPrimary, MinMapQ(30), MinBlockLen(50))
	keep := paf.Record{TName: "A", TStart: 10, MapQ: 60, BlockLen: 100}
	lowQ := paf.Record{TName: "A", TStart: 10, MapQ: 10, BlockLen: 100}
	short := paf.Record{TName: "A", TStart: 10, MapQ: 60, BlockLen: 10}
	secondary := paf.Record{TName: "A", TStart: 10, MapQ: 60, BlockLen: 100}
	secondary.Tags.Set(paf.TP, byte('S'))
	for i, c := range []struct {
		rec  *paf.Record
		kept bool
	}{
		{&keep, true}, {&lowQ, false}, {&short, false}, {&secondary, false},
	} {
		if got := filter(c.rec); got != c.kept {
			t.Errorf("filter %v failed", i+1)
		}
	}
	acc := NewAccumulator(registry, 250, filter, "s1")
	acc.Add(&keep)
	acc.Add(&lowQ)
	acc.Add(&short)
	acc.Add(&secondary)
	if acc.Counts()[0] != 1 || acc.Filtered() != 3 || acc.Total() != 4 {
		t.Error("filtered accumulation failed")
	}
}

func TestCount(t *testing.T) {
	registry := testRegistry(t, testFai)
	var lines strings.Builder
	direct := NewAccumulator(registry, 250, nil, "s1")
	for i := int64(0); i < 200; i++ {
		contig := "A"
		if i%3 == 0 {
			contig = "B"
		}
		start := (i * 37) % 1000
		lines.WriteString(pafLine(fmt.Sprintf("r%v", i), contig, start, 60, ""))
		direct.Add(&paf.Record{TName: contig, TStart: start, MapQ: 60})
	}
	piped := NewAccumulator(registry, 250, nil, "s1")
	piped.Count(strings.NewReader(lines.String()))
	if piped.Total() != direct.Total() {
		t.Error("Count total failed")
	}
	for i := range direct.Counts() {
		if direct.Counts()[i] != piped.Counts()[i] {
			t.Errorf("Count counts %v failed", i+1)
		}
	}
	want := direct.BinStats()
	got := piped.BinStats()
	for i := range want {
		if *want[i] != *got[i] {
			t.Errorf("Count bins %v failed", i+1)
		}
	}
}

func TestCountMalformed(t *testing.T) {
	registry := testRegistry(t, testFai)
	acc := NewAccumulator(registry, 250, nil, "s1")
	defer func() {
		if recover() == nil {
			t.Error("malformed line panic failed")
		}
	}()
	acc.Count(strings.NewReader("only\tthree\tfields\n"))
}

const testSAM = "@HD\tVN:1.6\tSO:coordinate\n" +
	"@SQ\tSN:A\tLN:1000\n" +
	"@SQ\tSN:B\tLN:2000\n" +
	"r1\t0\tA\t11\t60\t4M\t*\t0\t0\tACGT\t*\n" +
	"r2\t16\tA\t21\t60\t4M\t*\t0\t0\tACGT\t*\n" +
	"r3\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\t*\n" +
	"r4\t256\tA\t31\t60\t4M\t*\t0\t0\tACGT\t*\n" +
	"r5\t0\tB\t101\t60\t4M\t*\t0\t0\tACGT\t*\n"

func TestCountSAM(t *testing.T) {
	registry := testRegistry(t, testFai)
	name := filepath.Join(t.TempDir(), "s1.sam")
	if err := os.WriteFile(name, []byte(testSAM), 0600); err != nil {
		t.Fatal(err)
	}
	acc := NewAccumulator(registry, 250, nil, "s1")
	acc.CountSAM(name)
	// The unmapped and secondary records count toward the total but are
	// screened before filtering.
	if acc.Total() != 5 {
		t.Error("SAM total failed")
	}
	if acc.Filtered() != 2 {
		t.Error("SAM screened failed")
	}
	counts := acc.Counts()
	if counts[0] != 2 || counts[1] != 1 {
		t.Error("SAM counts failed")
	}
	if acc.BinStats()[0].Count != 2 {
		t.Error("SAM bins failed")
	}
}

func makeLargeAlignmentSet() []*paf.Record {
	records := make([]*paf.Record, 0x8000)
	for i := range records {
		rec := &paf.Record{QLen: 100, QEnd: 100, Strand: '+', Matches: 95, BlockLen: 100, MapQ: 60}
		if i%3 == 0 {
			rec.TName = "B"
			rec.TLen = 2000
			rec.TStart = rand.Int63n(2000)
		} else {
			rec.TName = "A"
			rec.TLen = 1000
			rec.TStart = rand.Int63n(1000)
		}
		rec.TEnd = rec.TStart + 100
		records[i] = rec
	}
	return records
}

func BenchmarkAccumulatorAdd(b *testing.B) {
	registry := testRegistry(b, testFai)
	acc := NewAccumulator(registry, 250, nil, "bench")
	records := makeLargeAlignmentSet()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.Add(records[i%len(records)])
	}
}

func BenchmarkAccumulatorAddFiltered(b *testing.B) {
	registry := testRegistry(b, testFai)
	filter := ComposeFilters(KeepPrimary, MinMapQ(20), MinBlockLen(50))
	acc := NewAccumulator(registry, 250, filter, "bench")
	records := makeLargeAlignmentSet()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.Add(records[i%len(records)])
	}
}
