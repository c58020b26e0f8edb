// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package depth

import (
	"fmt"
	"io"
	"log"
	"math"
	"sort"

	"github.com/exascience/pargo/pipeline"
	psort "github.com/exascience/pargo/sort"
	"github.com/willf/bitset"

	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
)

// DefaultBuckets are the default depth histogram bucket lower edges:
// 0, 1, 2-5, 6-10, 11-25, 26-50, 51-100, 101-250, 251+.
var DefaultBuckets = []int64{0, 1, 2, 6, 11, 26, 51, 101, 251}

// A Config holds the depth histogram bucketing. Bucket i covers depths
// from Buckets[i] up to but not including Buckets[i+1]; the last bucket
// is open-ended.
type Config struct {
	Buckets []int64
}

// NewConfig validates the given bucket lower edges. The first edge must
// be 0 so that zero-depth positions always have a bucket, and the edges
// must be strictly increasing.
func NewConfig(buckets []int64) (*Config, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("no depth histogram buckets given")
	}
	if buckets[0] != 0 {
		return nil, fmt.Errorf("first depth histogram bucket must start at 0, not %v", buckets[0])
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return nil, fmt.Errorf("depth histogram buckets not strictly increasing at %v", buckets[i])
		}
	}
	return &Config{Buckets: buckets}, nil
}

// Size returns the number of histogram buckets.
func (config *Config) Size() int {
	return len(config.Buckets)
}

// BucketLabel renders the depth range covered by bucket i.
func (config *Config) BucketLabel(i int) string {
	lo := config.Buckets[i]
	if i == len(config.Buckets)-1 {
		return fmt.Sprintf("%v+", lo)
	}
	if hi := config.Buckets[i+1] - 1; hi > lo {
		return fmt.Sprintf("%v-%v", lo, hi)
	}
	return fmt.Sprintf("%v", lo)
}

func (config *Config) bucketFor(depth int64) int {
	return sort.Search(len(config.Buckets), func(i int) bool {
		return config.Buckets[i] > depth
	}) - 1
}

// Stats holds the per-contig reduction of one sample's depth stream:
// the four streaming moment sums, the positions covered, the bucketed
// depth histogram, and the derived excess kurtosis. NPositions always
// equals the contig length after Finish, because positions missing from
// the stream count as zero depth rather than being skipped.
type Stats struct {
	Contig     string
	Length     int64
	NPositions int64
	Sum        float64
	Sum2       float64
	Sum3       float64
	Sum4       float64
	Kurtosis   float64
	Histogram  []int64
}

// Mean returns the mean depth across all positions of the contig.
func (stats *Stats) Mean() float64 {
	if stats.NPositions == 0 {
		return 0
	}
	return stats.Sum / float64(stats.NPositions)
}

// kurtosis converts the streaming sums to central moments and returns
// the excess kurtosis m4/m2^2 - 3. When the variance m2 vanishes, at
// flat depth including all-zero contigs, the statistic is undefined and
// NaN is returned; the cutoff is relative to the mean square so that
// float cancellation noise on long high-depth contigs does not produce
// absurd finite values instead of the sentinel.
func (stats *Stats) kurtosis() float64 {
	n := float64(stats.NPositions)
	if n == 0 {
		return math.NaN()
	}
	mean := stats.Sum / n
	m2 := stats.Sum2/n - mean*mean
	if m2 <= 0 || m2 < 1e-12*(stats.Sum2/n) {
		return math.NaN()
	}
	mean2 := mean * mean
	m4 := stats.Sum4/n - 4*mean*stats.Sum3/n + 6*mean2*stats.Sum2/n - 3*mean2*mean2
	return m4/(m2*m2) - 3
}

// An OrderingViolationWarning notes that a depth stream broke the
// sorted-within-contig contract and that the contig fell back to
// buffered re-sorting. It is logged once per contig, never returned.
type OrderingViolationWarning struct {
	Sample  string
	Contig  string
	Pos     int64
	PrevPos int64
}

func (w *OrderingViolationWarning) Error() string {
	return fmt.Sprintf("%v: depth stream not sorted within contig %v (position %v after %v) - buffering and re-sorting", w.Sample, w.Contig, w.Pos, w.PrevPos)
}

// accumulator is the trusting core of the depth reduction: a streaming
// fold of the moment sums and histogram counts that assumes positions
// arrive non-decreasing. All stream validation happens in the Reducer
// sitting in front of it.
type accumulator struct {
	config                *Config
	n                     int64
	sum, sum2, sum3, sum4 float64
	hist                  []int64
	lastPos               int64
	lastDepth             int64
}

func (acc *accumulator) reset() {
	acc.n = 0
	acc.sum, acc.sum2, acc.sum3, acc.sum4 = 0, 0, 0, 0
	acc.hist = make([]int64, acc.config.Size())
	acc.lastPos = 0
	acc.lastDepth = 0
}

// restore copies the aggregates of stats into the accumulator. The
// histogram is copied, not aliased, so the Stats the Reducer keeps as
// its reopen base stays untouched by later tallies.
func (acc *accumulator) restore(stats *Stats) {
	acc.n = stats.NPositions
	acc.sum = stats.Sum
	acc.sum2 = stats.Sum2
	acc.sum3 = stats.Sum3
	acc.sum4 = stats.Sum4
	acc.hist = make([]int64, len(stats.Histogram))
	copy(acc.hist, stats.Histogram)
	acc.lastPos = 0
	acc.lastDepth = 0
}

func (acc *accumulator) tally(depth int64) {
	acc.n++
	d := float64(depth)
	d2 := d * d
	acc.sum += d
	acc.sum2 += d2
	acc.sum3 += d2 * d
	acc.sum4 += d2 * d2
	acc.hist[acc.config.bucketFor(depth)]++
}

func (acc *accumulator) untally(depth int64) {
	acc.n--
	d := float64(depth)
	d2 := d * d
	acc.sum -= d
	acc.sum2 -= d2
	acc.sum3 -= d2 * d
	acc.sum4 -= d2 * d2
	acc.hist[acc.config.bucketFor(depth)]--
}

// add folds one position into the running sums. A later record for the
// same position supersedes the earlier one, so feeding a sorted stream
// through add yields last-record-wins semantics for duplicates.
func (acc *accumulator) add(pos, depth int64) {
	if pos == acc.lastPos {
		acc.untally(acc.lastDepth)
	}
	acc.tally(depth)
	acc.lastPos = pos
	acc.lastDepth = depth
}

// A Reducer folds one sample's depth stream into per-contig Stats. It
// is the validating adapter in front of the streaming accumulator: it
// resolves contigs against the registry, drops out-of-range positions,
// and enforces the ordering contract.
//
// The stream is expected grouped by contig with non-decreasing
// positions within each contig. On that fast path nothing is kept per
// position. The expectation is checked, not trusted: the records of the
// open contig are retained until its boundary, and when a position runs
// backwards the contig is re-reduced from that buffer after a stable
// sort by position. Either way a duplicated position counts once, with
// the record arriving last superseding the others. The buffer never
// spans a contig boundary.
type Reducer struct {
	registry *fasta.Registry
	config   *Config
	sample   string

	stats []*Stats
	done  *bitset.BitSet

	current  int32
	length   int64
	violated bool
	base     *Stats
	scratch  []Record
	acc      accumulator

	unknownSkipped  int64
	rangeSkipped    int64
	unknownLogged   int
	rangeLogged     int
	violatedContigs int64
	reopenedContigs int64
}

// NewReducer returns a Reducer for one sample against the given registry.
func NewReducer(registry *fasta.Registry, config *Config, sample string) *Reducer {
	reducer := &Reducer{
		registry: registry,
		config:   config,
		sample:   sample,
		stats:    make([]*Stats, registry.Size()),
		done:     bitset.New(uint(registry.Size())),
		current:  -1,
	}
	reducer.acc.config = config
	return reducer
}

func (reducer *Reducer) open(index int32) {
	contig := reducer.registry.Contigs()[index]
	reducer.current = index
	reducer.length = contig.Length
	reducer.violated = false
	reducer.base = nil
	reducer.scratch = reducer.scratch[:0]
	reducer.acc.reset()
}

// reopen restores the raw aggregates of an already reduced contig so
// that a second group of records for it merges instead of clobbering.
// Duplicate positions across the two groups cannot be detected; groups
// are assumed position-disjoint, which holds for the realistic case of
// concatenated per-region depth files.
func (reducer *Reducer) reopen(index int32) {
	stats := reducer.stats[index]
	reducer.open(index)
	reducer.base = stats
	reducer.acc.restore(stats)
	reducer.stats[index] = nil
	reducer.done.Clear(uint(index))
	reducer.reopenedContigs++
	log.Printf("%v: depth records for contig %v resumed after other contigs - merging", reducer.sample, stats.Contig)
}

func (reducer *Reducer) finalizeCurrent() {
	index := reducer.current
	if index < 0 {
		return
	}
	if reducer.violated {
		// Re-reduce the contig from its buffered records, on top of
		// the base aggregates when the contig was reopened.
		reducer.acc.reset()
		if reducer.base != nil {
			reducer.acc.restore(reducer.base)
		}
		psort.StableSort(stableRecordSorter(reducer.scratch))
		for _, rec := range reducer.scratch {
			reducer.acc.add(rec.Pos, rec.Depth)
		}
	}
	contig := reducer.registry.Contigs()[index]
	reducer.stats[index] = &Stats{
		Contig:     contig.Name,
		Length:     contig.Length,
		NPositions: reducer.acc.n,
		Sum:        reducer.acc.sum,
		Sum2:       reducer.acc.sum2,
		Sum3:       reducer.acc.sum3,
		Sum4:       reducer.acc.sum4,
		Histogram:  reducer.acc.hist,
	}
	reducer.done.Set(uint(index))
	reducer.current = -1
}

// Add feeds one depth record into the reduction.
func (reducer *Reducer) Add(rec Record) {
	index, found := reducer.registry.Index(rec.Contig)
	if !found {
		reducer.unknownSkipped++
		if reducer.unknownLogged < 3 {
			reducer.unknownLogged++
			log.Printf("%v: depth record for unknown contig %v - skipped", reducer.sample, rec.Contig)
		}
		return
	}
	if index != reducer.current {
		reducer.finalizeCurrent()
		if reducer.done.Test(uint(index)) {
			reducer.reopen(index)
		} else {
			reducer.open(index)
		}
	}
	if rec.Pos < 1 || rec.Pos > reducer.length {
		reducer.rangeSkipped++
		if reducer.rangeLogged < 3 {
			reducer.rangeLogged++
			log.Printf("%v: depth position %v beyond length %v of contig %v - skipped", reducer.sample, rec.Pos, reducer.length, rec.Contig)
		}
		return
	}
	if !reducer.violated {
		if rec.Pos < reducer.acc.lastPos {
			reducer.violated = true
			reducer.violatedContigs++
			log.Print(&OrderingViolationWarning{
				Sample:  reducer.sample,
				Contig:  rec.Contig,
				Pos:     rec.Pos,
				PrevPos: reducer.acc.lastPos,
			})
		} else {
			reducer.acc.add(rec.Pos, rec.Depth)
		}
	}
	reducer.scratch = append(reducer.scratch, rec)
}

// Finish finalizes the open contig, zero-fills, and returns the Stats
// for every registry contig in registry order. Contigs never seen in
// the stream get synthetic all-zero Stats, so downstream tables always
// cover the full registry.
func (reducer *Reducer) Finish() []*Stats {
	reducer.finalizeCurrent()
	for index, contig := range reducer.registry.Contigs() {
		if !reducer.done.Test(uint(index)) {
			hist := make([]int64, reducer.config.Size())
			hist[0] = contig.Length
			reducer.stats[index] = &Stats{
				Contig:     contig.Name,
				Length:     contig.Length,
				NPositions: contig.Length,
				Kurtosis:   math.NaN(),
				Histogram:  hist,
			}
			continue
		}
		stats := reducer.stats[index]
		zeroFill := stats.Length - stats.NPositions
		if zeroFill < 0 {
			log.Printf("%v: contig %v has %v depth positions for length %v", reducer.sample, stats.Contig, stats.NPositions, stats.Length)
			zeroFill = 0
		}
		stats.NPositions += zeroFill
		stats.Histogram[0] += zeroFill
		stats.Kurtosis = stats.kurtosis()
	}
	return reducer.stats
}

// Skipped returns how many records were skipped because their contig is
// not in the registry, and how many because their position falls outside
// the contig.
func (reducer *Reducer) Skipped() (unknown, outOfRange int64) {
	return reducer.unknownSkipped, reducer.rangeSkipped
}

// Violations returns how many contigs needed the buffered re-sort
// fallback, and how many were resumed after a contig switch.
func (reducer *Reducer) Violations() (resorted, reopened int64) {
	return reducer.violatedContigs, reducer.reopenedContigs
}

func sortByPos(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pos < records[j].Pos
	})
}

type stableRecordSorter []Record

func (s stableRecordSorter) SequentialSort(i, j int) {
	sortByPos(s[i:j])
}

func (s stableRecordSorter) NewTemp() psort.StableSorter {
	return stableRecordSorter(make([]Record, len(s)))
}

func (s stableRecordSorter) Len() int {
	return len(s)
}

func (s stableRecordSorter) Less(i, j int) bool {
	return s[i].Pos < s[j].Pos
}

func (s stableRecordSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableRecordSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// Reduce consumes an entire depth stream through a parallel parsing
// pipeline, feeding this reducer in input order. Panics on malformed
// records; sample pipelines recover panics at their boundary.
func (reducer *Reducer) Reduce(reader io.Reader) {
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(reader))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		strs := data.([]string)
		records := make([]Record, 0, len(strs))
		for _, str := range strs {
			rec, err := ParseRecord(str)
			if err != nil {
				p.SetErr(err)
				return records
			}
			records = append(records, rec)
		}
		return records
	})))
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		records := data.([]Record)
		for _, rec := range records {
			reducer.Add(rec)
		}
		return data
	})))
	internal.RunPipeline(&p)
}
