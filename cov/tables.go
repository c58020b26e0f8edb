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
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/linsalrob/Koverage/fasta"
	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/utils"
)

const coverageHeader = "Sample\tContig\tRPM\tRPKM\tRPK\tTPM\tKurtosis"

// Names of the combined artifacts written after all samples finish, and
// the suffix identifying a per-sample coverage table.
const (
	AllCoverageFile    = "all_coverage.tsv"
	WideCoverageFile   = "all_coverage_wide.tsv"
	SampleSummaryFile  = "sample_summary.tsv"
	ContigSummaryFile  = "contig_summary.tsv"
	CoverageFileSuffix = "_coverage.tsv"
)

func appendRow(buf []byte, row *Row) []byte {
	buf = append(buf, row.Sample...)
	buf = append(buf, '\t')
	buf = append(buf, row.Contig...)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, row.RPM, 'g', 6, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, row.RPKM, 'g', 6, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, row.RPK, 'g', 6, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, row.TPM, 'g', 6, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, row.Kurtosis, 'g', 6, 64)
	return append(buf, '\n')
}

// WriteCoverageTable writes coverage tables as one tall tab-separated
// file, one row per sample and contig, samples in the given order and
// contigs in registry order within a sample. Undefined kurtosis renders
// as NaN.
func WriteCoverageTable(filename string, tables ...*SampleTable) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, coverageHeader+"\n")
	buf := internal.ReserveByteBuffer()
	for _, table := range tables {
		for i := range table.Rows {
			buf = appendRow(buf[:0], &table.Rows[i])
			internal.Write(writer, buf)
		}
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteWideTable writes the cross-sample coverage matrix: one row per
// registry contig, and one block of metric columns per sample.
func WriteWideTable(filename string, registry *fasta.Registry, tables []*SampleTable) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)

	internal.WriteString(writer, "Contig")
	for _, table := range tables {
		for _, metric := range []string{"RPM", "RPKM", "RPK", "TPM", "Kurtosis"} {
			internal.WriteString(writer, "\t"+table.Sample+"_"+metric)
		}
	}
	internal.WriteString(writer, "\n")

	buf := internal.ReserveByteBuffer()
	for index, contig := range registry.Contigs() {
		buf = append(buf[:0], contig.Name...)
		for _, table := range tables {
			row := &table.Rows[index]
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, row.RPM, 'g', 6, 64)
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, row.RPKM, 'g', 6, 64)
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, row.RPK, 'g', 6, 64)
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, row.TPM, 'g', 6, 64)
			buf = append(buf, '\t')
			buf = strconv.AppendFloat(buf, row.Kurtosis, 'g', 6, 64)
		}
		buf = append(buf, '\n')
		internal.Write(writer, buf)
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteSampleSummaryTable writes the per-sample rollup.
func WriteSampleSummaryTable(filename string, summaries []*SampleSummary) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, "Sample\tContigsHit\tTotalRPM\tMeanTPM\tMaxTPM\tMeanKurtosis\n")
	buf := internal.ReserveByteBuffer()
	for _, summary := range summaries {
		buf = append(buf[:0], summary.Sample...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, summary.ContigsHit, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.TotalRPM, 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.MeanTPM, 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.MaxTPM, 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.MeanKurtosis, 'g', 6, 64)
		buf = append(buf, '\n')
		internal.Write(writer, buf)
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteContigSummaryTable writes the per-contig rollup across samples.
func WriteContigSummaryTable(filename string, summaries []*ContigSummary) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, "Contig\tSamplesHit\tMeanTPM\tVarianceTPM\tMeanRPKM\n")
	buf := internal.ReserveByteBuffer()
	for _, summary := range summaries {
		buf = append(buf[:0], summary.Contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, summary.SamplesHit, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.MeanTPM, 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.VarianceTPM, 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, summary.MeanRPKM, 'g', 6, 64)
		buf = append(buf, '\n')
		internal.Write(writer, buf)
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteCombined writes the four combined artifacts into the given
// directory. It is only called after every sample pipeline finished, so
// a failed run never leaves combined tables behind.
func WriteCombined(dir string, registry *fasta.Registry, tables []*SampleTable) {
	WriteCoverageTable(filepath.Join(dir, AllCoverageFile), tables...)
	WriteWideTable(filepath.Join(dir, WideCoverageFile), registry, tables)
	WriteSampleSummaryTable(filepath.Join(dir, SampleSummaryFile), SummarizeSamples(tables))
	WriteContigSummaryTable(filepath.Join(dir, ContigSummaryFile), SummarizeContigs(registry, tables))
}

// WriteBinStatsTable writes the per-contig bin statistics, with the
// floating-point columns at 4 significant digits like the counts files
// this table descends from.
func WriteBinStatsTable(filename string, stats []*BinStats) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, "Contig\tLength\tCount\tMean\tMedian\tHitrate\tVariance\n")
	buf := internal.ReserveByteBuffer()
	for _, bs := range stats {
		buf = append(buf[:0], bs.Contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, bs.Length, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, bs.Count, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, bs.Mean, 'g', 4, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, bs.Median, 'g', 4, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, bs.Hitrate, 'g', 4, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, bs.Variance, 'g', 4, 64)
		buf = append(buf, '\n')
		internal.Write(writer, buf)
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteLibrarySize writes the observed library size as a single line.
func WriteLibrarySize(filename string, total int64) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	buf := internal.ReserveByteBuffer()
	buf = strconv.AppendInt(buf, total, 10)
	buf = append(buf, '\n')
	internal.Write(out, buf)
	internal.ReleaseByteBuffer(buf)
	out.Commit()
}

// ReadCoverageTable reads a coverage table written by WriteCoverageTable
// back into sample tables, projected onto the given registry: rows are
// reordered into registry order and contigs missing from the table are
// zero-filled with NaN kurtosis. Rows for contigs not in the registry
// are skipped and counted, following the unknown-contig policy of the
// accumulators. The file may hold one sample or a tall concatenation of
// several; tables are returned in order of first appearance.
func ReadCoverageTable(filename string, registry *fasta.Registry) ([]*SampleTable, error) {
	input := internal.FileOpen(filename)
	defer internal.Close(input)
	reader, decomp := utils.HandleCompressed(bufio.NewReader(input))
	if decomp != nil {
		defer internal.Close(decomp)
	}
	scanner := bufio.NewScanner(reader)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("missing header in coverage table %v", filename)
	}
	if header := scanner.Text(); header != coverageHeader {
		return nil, fmt.Errorf("unexpected header %q in coverage table %v", header, filename)
	}

	byName := make(map[string]*SampleTable)
	var tables []*SampleTable
	var unknownSkipped int64
	unknownLogged := 0

	for line := 2; scanner.Scan(); line++ {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("invalid number of fields in coverage table %v line %v", filename, line)
		}
		sample, contig := fields[0], fields[1]
		table := byName[sample]
		if table == nil {
			table = &SampleTable{Sample: sample, Rows: make([]Row, registry.Size())}
			for index, c := range registry.Contigs() {
				table.Rows[index] = Row{Sample: sample, Contig: c.Name, Kurtosis: math.NaN()}
			}
			byName[sample] = table
			tables = append(tables, table)
		}
		index, found := registry.Index(contig)
		if !found {
			unknownSkipped++
			if unknownLogged < 3 {
				unknownLogged++
				log.Printf("coverage table %v: row for unknown contig %v - skipped", filename, contig)
			}
			continue
		}
		row := &table.Rows[index]
		var err error
		for i, target := range []*float64{&row.RPM, &row.RPKM, &row.RPK, &row.TPM, &row.Kurtosis} {
			if *target, err = strconv.ParseFloat(fields[2+i], 64); err != nil {
				return nil, fmt.Errorf("%v, while parsing coverage table %v line %v", err, filename, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if unknownSkipped > 0 {
		log.Printf("coverage table %v: skipped %v rows for contigs not in the registry", filename, unknownSkipped)
	}
	return tables, nil
}
