// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package cmd

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/linsalrob/Koverage/cov"
	"github.com/linsalrob/Koverage/depth"
	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
)

// CoverageHelp is the help string for this command.
const CoverageHelp = "\ncoverage parameters:\n" +
	"koverage coverage\n" +
	"--reference file\n" +
	"--samples file\n" +
	"--output-dir dir\n" +
	"[--bin-width n]\n" +
	"[--buckets n,n,...]\n" +
	"[--min-mapq n]\n" +
	"[--min-block-len n]\n" +
	"[--primary-only]\n" +
	"[--archive-paf dir]\n" +
	"[--nr-of-samples n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// recordFilter builds the alignment filter from the command line
// filtering flags.
func recordFilter(minMapQ, minBlockLen int, primaryOnly bool) cov.RecordFilter {
	var filters []cov.RecordFilter
	if primaryOnly {
		filters = append(filters, cov.KeepPrimary)
	}
	if minMapQ > 0 {
		filters = append(filters, cov.MinMapQ(byte(minMapQ)))
	}
	if minBlockLen > 0 {
		filters = append(filters, cov.MinBlockLen(int64(minBlockLen)))
	}
	return cov.ComposeFilters(filters...)
}

// bucketConfig builds the depth histogram configuration from the
// --buckets flag, falling back to the default edges.
func bucketConfig(bucketsString string) (*depth.Config, error) {
	buckets := depth.DefaultBuckets
	if bucketsString != "" {
		var err error
		if buckets, err = parseBuckets(bucketsString); err != nil {
			return nil, err
		}
	}
	return depth.NewConfig(buckets)
}

// writeSampleArtifacts writes the per-sample tables for one finished
// sample pipeline. The depth tables are only written when the sample
// has a depth stream.
func writeSampleArtifacts(dir string, config *depth.Config, result *cov.Result) {
	cov.WriteCoverageTable(filepath.Join(dir, result.Sample+cov.CoverageFileSuffix), result.Table)
	cov.WriteBinStatsTable(filepath.Join(dir, result.Sample+"_counts.tsv"), result.Bins)
	cov.WriteLibrarySize(filepath.Join(dir, result.Sample+"_lib.tsv"), result.Observed)
	if result.Stats != nil {
		depth.WriteStatsTable(filepath.Join(dir, result.Sample+"_depth.tsv"), result.Stats)
		depth.WriteHistogramTable(filepath.Join(dir, result.Sample+"_hist.tsv"), config, result.Stats)
	}
}

// Coverage implements the koverage coverage command.
func Coverage() (err error) {
	var (
		reference, samplesFile, outputDir string
		binWidth                          int
		bucketsString                     string
		minMapQ, minBlockLen              int
		primaryOnly                       bool
		archivePaf                        string
		nrOfSamples, nrOfThreads          int
		timed                             bool
		profile, logPath                  string
	)

	var flags flag.FlagSet

	flags.StringVar(&reference, "reference", "", "reference assembly (fasta, possibly compressed, or fai index)")
	flags.StringVar(&samplesFile, "samples", "", "sample manifest")
	flags.StringVar(&outputDir, "output-dir", "", "directory for the output tables")
	flags.IntVar(&binWidth, "bin-width", 250, "width of the positional hit bins")
	flags.StringVar(&bucketsString, "buckets", "", "comma-separated depth histogram bucket lower edges")
	flags.IntVar(&minMapQ, "min-mapq", 0, "keep only alignments with at least the given mapping quality")
	flags.IntVar(&minBlockLen, "min-block-len", 0, "keep only alignments spanning at least the given number of bases")
	flags.BoolVar(&primaryOnly, "primary-only", false, "keep only primary alignments")
	flags.StringVar(&archivePaf, "archive-paf", "", "archive the raw PAF streams to the specified directory")
	flags.IntVar(&nrOfSamples, "nr-of-samples", 4, "number of samples processed in parallel")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 2, CoverageHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("--reference", reference) {
		sanityChecksFailed = true
	}
	if !checkExist("--samples", samplesFile) {
		sanityChecksFailed = true
	}
	if outputDir == "" {
		log.Println("Error: Missing directory for command line parameter --output-dir.")
		sanityChecksFailed = true
	}
	if binWidth <= 0 {
		log.Println("Error: Invalid bin-width: ", binWidth)
		sanityChecksFailed = true
	}
	if minMapQ < 0 || minMapQ > 255 {
		log.Println("Error: Invalid min-mapq: ", minMapQ)
		sanityChecksFailed = true
	}
	if minBlockLen < 0 {
		log.Println("Error: Invalid min-block-len: ", minBlockLen)
		sanityChecksFailed = true
	}
	if nrOfSamples < 1 {
		log.Println("Error: Invalid nr-of-samples: ", nrOfSamples)
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}

	buckets, bucketsErr := bucketConfig(bucketsString)
	if bucketsErr != nil {
		log.Println("Error: Invalid buckets: ", bucketsErr)
		sanityChecksFailed = true
	}

	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CoverageHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " coverage --reference ", reference, " --samples ", samplesFile, " --output-dir ", outputDir)
	fmt.Fprint(&command, " --bin-width ", binWidth)
	if bucketsString != "" {
		fmt.Fprint(&command, " --buckets ", bucketsString)
	}
	if minMapQ > 0 {
		fmt.Fprint(&command, " --min-mapq ", minMapQ)
	}
	if minBlockLen > 0 {
		fmt.Fprint(&command, " --min-block-len ", minBlockLen)
	}
	if primaryOnly {
		fmt.Fprint(&command, " --primary-only")
	}
	if archivePaf != "" {
		fmt.Fprint(&command, " --archive-paf ", archivePaf)
	}
	fmt.Fprint(&command, " --nr-of-samples ", nrOfSamples)
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	defer func() {
		if x := recover(); x != nil {
			err = errors.New(fmt.Sprint(x))
		}
	}()

	var registry *fasta.Registry
	timedRun(timed, profile, "Building the contig registry.", 1, func() {
		var ferr error
		if registry, ferr = fasta.Open(reference); ferr != nil {
			log.Panic(ferr)
		}
	})

	samples, merr := cov.ParseManifest(samplesFile)
	if merr != nil {
		return merr
	}
	log.Println("Processing", len(samples), "samples over", registry.Size(), "contigs.")

	config := &cov.Config{
		BinWidth:   int64(binWidth),
		Buckets:    buckets,
		Filter:     recordFilter(minMapQ, minBlockLen, primaryOnly),
		ArchiveDir: archivePaf,
	}

	internal.MkdirAll(outputDir, 0700)

	var results []*cov.Result
	var runErr error
	timedRun(timed, profile, "Processing samples.", 2, func() {
		results, runErr = cov.Run(registry, config, samples, nrOfSamples, func(result *cov.Result) {
			writeSampleArtifacts(outputDir, buckets, result)
		})
	})
	if runErr != nil {
		return runErr
	}

	timedRun(timed, profile, "Combining sample tables.", 3, func() {
		tables := make([]*cov.SampleTable, len(results))
		for i, result := range results {
			tables[i] = result.Table
		}
		cov.WriteCombined(outputDir, registry, tables)
	})

	return nil
}
