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
	"sort"
	"strings"

	"github.com/linsalrob/Koverage/cov"
	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/utils"
)

// MergeHelp is the help string for this command.
const MergeHelp = "\nmerge parameters:\n" +
	"koverage merge table-or-directory...\n" +
	"--reference file\n" +
	"--output-dir dir\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// coverageTables expands the positional merge arguments: plain files are
// taken as coverage tables, directories contribute every *_coverage.tsv
// they contain.
func coverageTables(inputs []string) ([]string, error) {
	var tables []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			tables = append(tables, input)
			continue
		}
		entries, err := internal.Directory(input)
		if err != nil {
			return nil, err
		}
		sort.Strings(entries)
		found := false
		for _, entry := range entries {
			// all_coverage.tsv shares the suffix but is a combined table.
			if entry != cov.AllCoverageFile && strings.HasSuffix(entry, cov.CoverageFileSuffix) {
				tables = append(tables, filepath.Join(input, entry))
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("no per-sample coverage tables in directory %v", input)
		}
	}
	return tables, nil
}

// Merge implements the koverage merge command.
func Merge() (err error) {
	var (
		reference, outputDir string
		nrOfThreads          int
		timed                bool
		profile, logPath     string
	)

	var flags flag.FlagSet

	flags.StringVar(&reference, "reference", "", "reference assembly (fasta, possibly compressed, or fai index)")
	flags.StringVar(&outputDir, "output-dir", "", "output directory for the combined tables")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	argIndex := 2
	for argIndex < len(os.Args) && !strings.HasPrefix(os.Args[argIndex], "-") {
		argIndex++
	}
	inputs := os.Args[2:argIndex]

	parseFlags(flags, argIndex, MergeHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if len(inputs) == 0 {
		log.Println("Error: Missing input coverage tables.")
		sanityChecksFailed = true
	}
	if !checkExist("--reference", reference) {
		sanityChecksFailed = true
	}
	if outputDir == "" {
		log.Println("Error: Missing output directory for command line parameter --output-dir.")
		sanityChecksFailed = true
	}
	files, ferr := coverageTables(inputs)
	if ferr != nil {
		log.Println("Error: ", ferr)
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
		fmt.Fprint(os.Stderr, MergeHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " merge ", strings.Join(inputs, " "), " --reference ", reference, " --output-dir ", outputDir)
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

	var tables []*cov.SampleTable
	timedRun(timed, profile, "Reading coverage tables.", 2, func() {
		seen := make(utils.StringMap)
		for _, file := range files {
			fileTables, rerr := cov.ReadCoverageTable(file, registry)
			if rerr != nil {
				log.Panic(rerr)
			}
			for _, table := range fileTables {
				if !seen.SetUniqueEntry(table.Sample, file) {
					log.Panic(&cov.DuplicateSampleError{Path: file, Name: table.Sample})
				}
			}
			tables = append(tables, fileTables...)
		}
	})

	log.Println("Combining", len(tables), "sample tables from", len(files), "files.")

	timedRun(timed, profile, "Combining sample tables.", 3, func() {
		internal.MkdirAll(outputDir, 0700)
		cov.WriteCombined(outputDir, registry, tables)
	})

	return nil
}
