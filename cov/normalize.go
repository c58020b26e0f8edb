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

	"github.com/linsalrob/Koverage/depth"
	"github.com/linsalrob/Koverage/fasta"
)

// A Row is one sample and contig line of a coverage table, holding the
// normalized coverage metrics and the depth kurtosis.
type Row struct {
	Sample   string
	Contig   string
	RPM      float64
	RPKM     float64
	RPK      float64
	TPM      float64
	Kurtosis float64
}

// A SampleTable is one sample's coverage rows, one per registry contig,
// in registry order.
type SampleTable struct {
	Sample string
	Rows   []Row
}

// Normalize combines one sample's raw counts, library size and depth
// statistics into a coverage table.
//
// RPK is the raw count per kilobase of contig length, RPM the raw count
// per million library reads, RPKM is RPM again per kilobase, and TPM is
// RPK rescaled so that the values over a sample sum to one million. A
// library size of zero zeroes RPM, RPKM and TPM for the whole sample
// rather than dividing by zero; RPK stays defined since it only depends
// on counts and lengths. A zero RPK sum likewise yields all-zero TPM.
// Kurtosis is carried over from the depth statistics, or NaN when the
// sample has no depth stream.
func Normalize(registry *fasta.Registry, sample string, counts []int64, totalReads int64, stats []*depth.Stats) *SampleTable {
	contigs := registry.Contigs()
	rows := make([]Row, len(contigs))

	var sumRPK float64
	for index, contig := range contigs {
		rpk := float64(counts[index]) / (float64(contig.Length) / 1000)
		sumRPK += rpk
		rows[index] = Row{
			Sample:   sample,
			Contig:   contig.Name,
			RPK:      rpk,
			Kurtosis: math.NaN(),
		}
		if stats != nil {
			rows[index].Kurtosis = stats[index].Kurtosis
		}
	}

	if totalReads > 0 {
		perMillion := float64(totalReads) / 1e6
		for index, contig := range contigs {
			rpm := float64(counts[index]) / perMillion
			rows[index].RPM = rpm
			rows[index].RPKM = rpm / (float64(contig.Length) / 1000)
			if sumRPK > 0 {
				rows[index].TPM = rows[index].RPK / sumRPK * 1e6
			}
		}
	}

	return &SampleTable{Sample: sample, Rows: rows}
}
