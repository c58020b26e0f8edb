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
	"runtime"

	"github.com/linsalrob/Koverage/depth"
	"github.com/linsalrob/Koverage/fasta"
)

// DepthHelp is the help string for this command.
const DepthHelp = "\ndepth parameters:\n" +
	"koverage depth\n" +
	"--reference file\n" +
	"--sample name\n" +
	"--depths file\n" +
	"--output file\n" +
	"[--histogram file]\n" +
	"[--buckets n,n,...]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Depth implements the koverage depth command.
func Depth() (err error) {
	var (
		reference, sample string
		depths            string
		output, histogram string
		bucketsString     string
		nrOfThreads       int
		timed             bool
		profile, logPath  string
	)

	var flags flag.FlagSet

	flags.StringVar(&reference, "reference", "", "reference assembly (fasta, possibly compressed, or fai index)")
	flags.StringVar(&sample, "sample", "", "sample name")
	flags.StringVar(&depths, "depths", "", "per-position depth file (tsv, possibly compressed)")
	flags.StringVar(&output, "output", "", "output file for the per-contig depth statistics table")
	flags.StringVar(&histogram, "histogram", "", "output file for the per-contig depth histogram table")
	flags.StringVar(&bucketsString, "buckets", "", "comma-separated lower bounds for the depth histogram buckets")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 2, DepthHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("--reference", reference) {
		sanityChecksFailed = true
	}
	if !checkExist("--depths", depths) {
		sanityChecksFailed = true
	}
	if sample == "" {
		log.Println("Error: Missing sample name for command line parameter --sample.")
		sanityChecksFailed = true
	}
	if !checkCreate("--output", output) {
		sanityChecksFailed = true
	}
	if histogram != "" && !checkCreate("--histogram", histogram) {
		sanityChecksFailed = true
	}
	config, cerr := bucketConfig(bucketsString)
	if cerr != nil {
		log.Println("Error: Invalid buckets: ", cerr)
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DepthHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " depth --reference ", reference, " --sample ", sample, " --depths ", depths, " --output ", output)
	if histogram != "" {
		fmt.Fprint(&command, " --histogram ", histogram)
	}
	if bucketsString != "" {
		fmt.Fprint(&command, " --buckets ", bucketsString)
	}
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

	reducer := depth.NewReducer(registry, config, sample)

	timedRun(timed, profile, "Reducing the depth stream.", 2, func() {
		input := depth.Open(depths)
		defer input.Close()
		reducer.Reduce(input.Reader())
		stats := reducer.Finish()
		depth.WriteStatsTable(output, stats)
		if histogram != "" {
			depth.WriteHistogramTable(histogram, config, stats)
		}
	})

	if unknown, outOfRange := reducer.Skipped(); unknown > 0 || outOfRange > 0 {
		log.Printf("%v: skipped %v depth records for unknown contigs and %v with out-of-range positions", sample, unknown, outOfRange)
	}
	if resorted, reopened := reducer.Violations(); resorted > 0 || reopened > 0 {
		log.Printf("%v: depth stream out of order: %v contigs re-sorted, %v reopened", sample, resorted, reopened)
	}

	return nil
}
