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

	"gonum.org/v1/gonum/stat"

	"github.com/linsalrob/Koverage/fasta"
)

// A SampleSummary rolls one sample's coverage table up across contigs.
// MeanKurtosis averages the contigs with a defined kurtosis and is NaN
// when there are none.
type SampleSummary struct {
	Sample       string
	ContigsHit   int64
	TotalRPM     float64
	MeanTPM      float64
	MaxTPM       float64
	MeanKurtosis float64
}

// A ContigSummary rolls one contig up across all samples. VarianceTPM
// is the sample variance of the TPM values, NaN for a single-sample
// run.
type ContigSummary struct {
	Contig      string
	SamplesHit  int64
	MeanTPM     float64
	VarianceTPM float64
	MeanRPKM    float64
}

// SummarizeSamples computes the per-sample rollup, in sample order.
func SummarizeSamples(tables []*SampleTable) []*SampleSummary {
	summaries := make([]*SampleSummary, 0, len(tables))
	for _, table := range tables {
		summary := &SampleSummary{Sample: table.Sample, MeanKurtosis: math.NaN()}
		tpms := make([]float64, 0, len(table.Rows))
		var kurtosisSum float64
		var kurtosisN int64
		for _, row := range table.Rows {
			if row.TPM > 0 {
				summary.ContigsHit++
			}
			summary.TotalRPM += row.RPM
			if row.TPM > summary.MaxTPM {
				summary.MaxTPM = row.TPM
			}
			tpms = append(tpms, row.TPM)
			if !math.IsNaN(row.Kurtosis) {
				kurtosisSum += row.Kurtosis
				kurtosisN++
			}
		}
		if len(tpms) > 0 {
			summary.MeanTPM = stat.Mean(tpms, nil)
		}
		if kurtosisN > 0 {
			summary.MeanKurtosis = kurtosisSum / float64(kurtosisN)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// SummarizeContigs computes the per-contig rollup across samples, in
// registry order. Every table must cover the full registry, which holds
// for tables produced by Normalize and ReadCoverageTable.
func SummarizeContigs(registry *fasta.Registry, tables []*SampleTable) []*ContigSummary {
	summaries := make([]*ContigSummary, 0, registry.Size())
	tpms := make([]float64, len(tables))
	rpkms := make([]float64, len(tables))
	for index, contig := range registry.Contigs() {
		summary := &ContigSummary{Contig: contig.Name}
		for i, table := range tables {
			row := table.Rows[index]
			if row.TPM > 0 {
				summary.SamplesHit++
			}
			tpms[i] = row.TPM
			rpkms[i] = row.RPKM
		}
		if len(tables) > 0 {
			summary.MeanTPM = stat.Mean(tpms, nil)
			summary.VarianceTPM = stat.Variance(tpms, nil)
			summary.MeanRPKM = stat.Mean(rpkms, nil)
		} else {
			summary.VarianceTPM = math.NaN()
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
