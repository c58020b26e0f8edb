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
	"io"
	"log"

	"github.com/exascience/pargo/pipeline"

	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/paf"
)

// An UnknownContigError notes an alignment to a contig absent from the
// registry. It is recoverable: the record is skipped and counted, with
// only the first few occurrences logged.
type UnknownContigError struct {
	Sample string
	Contig string
}

func (err *UnknownContigError) Error() string {
	return fmt.Sprintf("%v: alignment to unknown contig %v - skipped", err.Sample, err.Contig)
}

// An Accumulator folds one sample's alignment stream into per-contig
// raw counts and fixed-width positional hit bins, and tracks the
// observed record total, which serves as the library size when the
// manifest does not provide one. Bin slices are allocated lazily, on
// the first hit to a contig.
type Accumulator struct {
	registry *fasta.Registry
	sample   string
	binWidth int64
	filter   RecordFilter

	counts []int64
	bins   [][]int64
	total  int64

	filtered       int64
	unknownSkipped int64
	rangeSkipped   int64
	unknownLogged  int
	rangeLogged    int
}

// NewAccumulator returns an Accumulator for one sample against the
// given registry. A nil filter keeps every record.
func NewAccumulator(registry *fasta.Registry, binWidth int64, filter RecordFilter, sample string) *Accumulator {
	if binWidth <= 0 {
		log.Panicf("invalid bin width %v", binWidth)
	}
	if filter == nil {
		filter = ComposeFilters()
	}
	return &Accumulator{
		registry: registry,
		sample:   sample,
		binWidth: binWidth,
		filter:   filter,
		counts:   make([]int64, registry.Size()),
		bins:     make([][]int64, registry.Size()),
	}
}

// Add feeds one alignment record into the accumulation.
func (acc *Accumulator) Add(rec *paf.Record) {
	acc.total++
	if !acc.filter(rec) {
		acc.filtered++
		return
	}
	acc.place(rec.TName, rec.TStart)
}

// place counts one kept alignment against its target contig and bin.
func (acc *Accumulator) place(contig string, start int64) {
	index, found := acc.registry.Index(contig)
	if !found {
		acc.unknownSkipped++
		if acc.unknownLogged < 3 {
			acc.unknownLogged++
			log.Print(&UnknownContigError{Sample: acc.sample, Contig: contig})
		}
		return
	}
	length := acc.registry.Contigs()[index].Length
	if start < 0 || start >= length {
		acc.rangeSkipped++
		if acc.rangeLogged < 3 {
			acc.rangeLogged++
			log.Printf("%v: alignment start %v beyond length %v of contig %v - skipped", acc.sample, start, length, contig)
		}
		return
	}
	acc.counts[index]++
	bins := acc.bins[index]
	if bins == nil {
		bins = make([]int64, length/acc.binWidth+1)
		acc.bins[index] = bins
	}
	bins[start/acc.binWidth]++
}

// Counts returns the per-contig raw counts in registry order.
func (acc *Accumulator) Counts() []int64 {
	return acc.counts
}

// Total returns the observed record total.
func (acc *Accumulator) Total() int64 {
	return acc.total
}

// Filtered returns how many records the filters dropped.
func (acc *Accumulator) Filtered() int64 {
	return acc.filtered
}

// Skipped returns how many kept records were skipped because their
// contig is not in the registry, and how many because their target
// start falls outside the contig.
func (acc *Accumulator) Skipped() (unknown, outOfRange int64) {
	return acc.unknownSkipped, acc.rangeSkipped
}

// Count consumes an entire PAF stream through a parallel parsing
// pipeline, feeding this accumulator in input order. Panics on
// malformed records; sample pipelines recover panics at their boundary.
func (acc *Accumulator) Count(reader io.Reader) {
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(reader))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		strs := data.([]string)
		records := make([]*paf.Record, 0, len(strs))
		var sc paf.StringScanner
		for _, str := range strs {
			sc.Reset(str)
			rec := sc.ParseRecord()
			if err := sc.Err(); err != nil {
				p.SetErr(fmt.Errorf("%v, while parsing %v", err, str))
				return records
			}
			records = append(records, rec)
		}
		return records
	})))
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		records := data.([]*paf.Record)
		for _, rec := range records {
			acc.Add(rec)
		}
		return data
	})))
	internal.RunPipeline(&p)
}
