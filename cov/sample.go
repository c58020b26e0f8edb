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
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/exascience/pargo/parallel"

	"github.com/linsalrob/Koverage/depth"
	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/paf"
	"github.com/linsalrob/Koverage/utils"
)

// A Sample is one manifest entry: the sample name, its alignment file,
// an optional per-position depth stream, and an optional library size.
// Depths and TotalReads are empty when the manifest leaves them out.
type Sample struct {
	Name       string
	Alignments string
	Depths     string
	TotalReads string
}

// A DuplicateSampleError reports two manifest entries or coverage
// tables sharing a sample name. Sample names become file name stems and
// table keys, so a duplicate would make one sample silently overwrite
// another.
type DuplicateSampleError struct {
	Path string
	Name string
}

func (err *DuplicateSampleError) Error() string {
	return fmt.Sprintf("duplicate sample %v in %v", err.Name, err.Path)
}

// ParseManifest parses a tab-separated sample manifest. Blank lines and
// lines starting with # are skipped. Each remaining line has three or
// four fields: name, alignment file, depth file, library size; a - in
// the two optional fields means absent, and the fourth field may be
// left off entirely.
func ParseManifest(filename string) ([]Sample, error) {
	file := internal.FileOpen(filename)
	defer internal.Close(file)

	var samples []Sample
	seen := make(utils.StringMap)

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 || len(fields) > 4 {
			return nil, fmt.Errorf("invalid number of fields in manifest %v line %v", filename, line)
		}
		sample := Sample{Name: fields[0], Alignments: fields[1], Depths: fields[2]}
		if len(fields) == 4 {
			sample.TotalReads = fields[3]
		}
		if sample.Name == "" || sample.Name == "-" {
			return nil, fmt.Errorf("missing sample name in manifest %v line %v", filename, line)
		}
		if sample.Alignments == "" || sample.Alignments == "-" {
			return nil, fmt.Errorf("missing alignment file for sample %v in manifest %v line %v", sample.Name, filename, line)
		}
		if sample.Depths == "-" {
			sample.Depths = ""
		}
		if sample.TotalReads == "-" {
			sample.TotalReads = ""
		}
		if !seen.SetUniqueEntry(sample.Name, sample.Alignments) {
			return nil, &DuplicateSampleError{Path: filename, Name: sample.Name}
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in manifest %v", filename)
	}
	return samples, nil
}

// A Config carries the settings shared by all sample pipelines of one
// run. A nil Filter keeps every record; an empty ArchiveDir disables
// alignment archiving.
type Config struct {
	BinWidth   int64
	Buckets    *depth.Config
	Filter     RecordFilter
	ArchiveDir string
}

// A Result holds everything one finished sample pipeline produced.
// Stats is nil when the sample has no depth stream.
type Result struct {
	Sample     string
	TotalReads int64
	Observed   int64
	Bins       []*BinStats
	Stats      []*depth.Stats
	Table      *SampleTable
}

// CountAlignments consumes the sample's alignment file into the given
// accumulator, with panics in place of errors. BAM and SAM inputs are
// recognized by their file name; anything else is read as PAF. For PAF
// input with a non-empty archiveDir, the raw stream is teed into a
// zstandard archive that is committed only when counting succeeds.
func CountAlignments(acc *Accumulator, sample Sample, archiveDir string) {
	name := sample.Alignments
	switch {
	case strings.HasSuffix(name, ".bam"):
		acc.CountBAM(name)
	case strings.HasSuffix(name, ".sam"),
		strings.HasSuffix(name, ".sam.gz"),
		strings.HasSuffix(name, ".sam.zst"):
		acc.CountSAM(name)
	default:
		input := paf.Open(name)
		defer input.Close()
		if archiveDir != "" {
			archive := paf.CreateArchive(archiveDir, sample.Name)
			defer archive.Abort()
			acc.Count(io.TeeReader(input.Reader(), archive))
			archive.Commit()
		} else {
			acc.Count(input.Reader())
		}
	}
}

// resolveTotalReads turns the manifest's library size field into the
// total used for normalization: empty means the observed record total,
// an integer is taken as is, and anything else is read as a file whose
// first token is the total.
func resolveTotalReads(spec string, observed int64) int64 {
	if spec == "" {
		return observed
	}
	if total, err := strconv.ParseInt(spec, 10, 64); err == nil {
		if total <= 0 {
			log.Panicf("invalid library size %v", total)
		}
		return total
	}
	file := internal.FileOpen(spec)
	defer internal.Close(file)
	var total int64
	if _, err := fmt.Fscan(file, &total); err != nil {
		log.Panicf("%v, while reading library size from %v", err, spec)
	}
	if total <= 0 {
		log.Panicf("invalid library size %v in %v", total, spec)
	}
	return total
}

func logSkipSummary(acc *Accumulator, reducer *depth.Reducer, sample Sample) {
	if filtered := acc.Filtered(); filtered > 0 {
		log.Printf("%v: %v alignments dropped by filters", sample.Name, filtered)
	}
	if unknown, outOfRange := acc.Skipped(); unknown > 0 || outOfRange > 0 {
		log.Printf("%v: skipped %v alignments to unknown contigs and %v with out-of-range starts", sample.Name, unknown, outOfRange)
	}
	if sample.Depths != "" {
		if unknown, outOfRange := reducer.Skipped(); unknown > 0 || outOfRange > 0 {
			log.Printf("%v: skipped %v depth records for unknown contigs and %v with out-of-range positions", sample.Name, unknown, outOfRange)
		}
		if resorted, reopened := reducer.Violations(); resorted > 0 || reopened > 0 {
			log.Printf("%v: depth stream out of order: %v contigs re-sorted, %v reopened", sample.Name, resorted, reopened)
		}
	}
}

// ProcessSample runs one sample pipeline to completion: the alignment
// stream and the depth stream are consumed in parallel, then the counts
// are normalized against the resolved library size. Panics on any
// failure; Run recovers panics at the sample boundary.
func ProcessSample(registry *fasta.Registry, config *Config, sample Sample) *Result {
	acc := NewAccumulator(registry, config.BinWidth, config.Filter, sample.Name)
	reducer := depth.NewReducer(registry, config.Buckets, sample.Name)
	parallel.Do(
		func() {
			CountAlignments(acc, sample, config.ArchiveDir)
		},
		func() {
			if sample.Depths == "" {
				return
			}
			input := depth.Open(sample.Depths)
			defer input.Close()
			reducer.Reduce(input.Reader())
		},
	)
	var stats []*depth.Stats
	if sample.Depths != "" {
		stats = reducer.Finish()
	}
	logSkipSummary(acc, reducer, sample)
	observed := acc.Total()
	total := resolveTotalReads(sample.TotalReads, observed)
	return &Result{
		Sample:     sample.Name,
		TotalReads: total,
		Observed:   observed,
		Bins:       acc.BinStats(),
		Stats:      stats,
		Table:      Normalize(registry, sample.Name, acc.Counts(), total, stats),
	}
}

// A SamplePipelineFailure reports that one sample pipeline failed. The
// other samples of the run are unaffected.
type SamplePipelineFailure struct {
	Sample string
	Err    error
}

func (err *SamplePipelineFailure) Error() string {
	return fmt.Sprintf("sample %v failed: %v", err.Sample, err.Err)
}

// Run processes all samples, at most nrOfSamples at a time. Results
// come back in manifest order, and emit, when not nil, is additionally
// called as each sample finishes, serialized, so per-sample artifacts
// can be written while other samples are still running. A failure is
// confined to its sample: the remaining pipelines still run, the failed
// sample's result stays nil, and the first failure in manifest order is
// returned.
func Run(registry *fasta.Registry, config *Config, samples []Sample, nrOfSamples int, emit func(*Result)) ([]*Result, error) {
	if nrOfSamples < 1 {
		nrOfSamples = 1
	}
	results := make([]*Result, len(samples))
	failures := make([]error, len(samples))
	semaphore := make(chan struct{}, nrOfSamples)
	var wg sync.WaitGroup
	var emitLock sync.Mutex
	for index := range samples {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(index int, sample Sample) {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			defer func() {
				if x := recover(); x != nil {
					failures[index] = &SamplePipelineFailure{Sample: sample.Name, Err: errors.New(fmt.Sprint(x))}
					log.Print(failures[index])
				}
			}()
			result := ProcessSample(registry, config, sample)
			results[index] = result
			if emit != nil {
				emitLock.Lock()
				defer emitLock.Unlock()
				emit(result)
			}
		}(index, samples[index])
	}
	wg.Wait()
	for _, err := range failures {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
