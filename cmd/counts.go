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

	"github.com/linsalrob/Koverage/cov"
	"github.com/linsalrob/Koverage/fasta"
)

// CountsHelp is the help string for this command.
const CountsHelp = "\ncounts parameters:\n" +
	"koverage counts\n" +
	"--reference file\n" +
	"--sample name\n" +
	"--alignments file\n" +
	"--output file\n" +
	"[--lib file]\n" +
	"[--bin-width n]\n" +
	"[--min-mapq n]\n" +
	"[--min-block-len n]\n" +
	"[--primary-only]\n" +
	"[--archive-paf dir]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Counts implements the koverage counts command.
func Counts() (err error) {
	var (
		reference, sample    string
		alignments           string
		output, lib          string
		binWidth             int
		minMapQ, minBlockLen int
		primaryOnly          bool
		archivePaf           string
		nrOfThreads          int
		timed                bool
		profile, logPath     string
	)

	var flags flag.FlagSet

	flags.StringVar(&reference, "reference", "", "reference assembly (fasta, possibly compressed, or fai index)")
	flags.StringVar(&sample, "sample", "", "sample name")
	flags.StringVar(&alignments, "alignments", "", "alignment file (paf, possibly compressed, or sam/bam)")
	flags.StringVar(&output, "output", "", "output file for the per-contig counts table")
	flags.StringVar(&lib, "lib", "", "output file for the observed library size")
	flags.IntVar(&binWidth, "bin-width", 250, "width of the positional hit bins")
	flags.IntVar(&minMapQ, "min-mapq", 0, "keep only alignments with at least the given mapping quality")
	flags.IntVar(&minBlockLen, "min-block-len", 0, "keep only alignments spanning at least the given number of bases")
	flags.BoolVar(&primaryOnly, "primary-only", false, "keep only primary alignments")
	flags.StringVar(&archivePaf, "archive-paf", "", "archive the raw PAF stream to the specified directory")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 2, CountsHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("--reference", reference) {
		sanityChecksFailed = true
	}
	if !checkExist("--alignments", alignments) {
		sanityChecksFailed = true
	}
	if sample == "" {
		log.Println("Error: Missing sample name for command line parameter --sample.")
		sanityChecksFailed = true
	}
	if !checkCreate("--output", output) {
		sanityChecksFailed = true
	}
	if lib != "" && !checkCreate("--lib", lib) {
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
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CountsHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " counts --reference ", reference, " --sample ", sample, " --alignments ", alignments, " --output ", output)
	if lib != "" {
		fmt.Fprint(&command, " --lib ", lib)
	}
	fmt.Fprint(&command, " --bin-width ", binWidth)
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

	acc := cov.NewAccumulator(registry, int64(binWidth), recordFilter(minMapQ, minBlockLen, primaryOnly), sample)

	timedRun(timed, profile, "Counting alignments.", 2, func() {
		cov.CountAlignments(acc, cov.Sample{Name: sample, Alignments: alignments}, archivePaf)
		cov.WriteBinStatsTable(output, acc.BinStats())
		if lib != "" {
			cov.WriteLibrarySize(lib, acc.Total())
		}
	})

	if filtered := acc.Filtered(); filtered > 0 {
		log.Printf("%v: %v alignments dropped by filters", sample, filtered)
	}
	if unknown, outOfRange := acc.Skipped(); unknown > 0 || outOfRange > 0 {
		log.Printf("%v: skipped %v alignments to unknown contigs and %v with out-of-range starts", sample, unknown, outOfRange)
	}
	log.Println("Observed", acc.Total(), "alignment records.")

	return nil
}
