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
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BinStats summarize the positional hit bins of one contig: the raw
// alignment count, mean and median of the per-bin counts, the fraction
// of bins hit at least once, and the population variance of the bin
// counts scaled down by the bin width.
type BinStats struct {
	Contig   string
	Length   int64
	Count    int64
	Mean     float64
	Median   float64
	Hitrate  float64
	Variance float64
}

// BinStats returns the per-contig bin statistics in registry order.
// Contigs without any hit report all-zero statistics.
func (acc *Accumulator) BinStats() []*BinStats {
	out := make([]*BinStats, 0, acc.registry.Size())
	for index, contig := range acc.registry.Contigs() {
		bs := &BinStats{Contig: contig.Name, Length: contig.Length, Count: acc.counts[index]}
		if bins := acc.bins[index]; bins != nil {
			xs := make([]float64, len(bins))
			hit := 0
			for i, b := range bins {
				xs[i] = float64(b)
				if b != 0 {
					hit++
				}
			}
			bs.Mean = stat.Mean(xs, nil)
			bs.Variance = stat.MomentAbout(2, xs, bs.Mean, nil) / float64(acc.binWidth)
			bs.Hitrate = float64(hit) / float64(len(xs))
			// Median with the even/odd midpoint convention.
			sort.Float64s(xs)
			if n := len(xs); n%2 == 1 {
				bs.Median = xs[n/2]
			} else {
				bs.Median = (xs[n/2-1] + xs[n/2]) / 2
			}
		}
		out = append(out, bs)
	}
	return out
}
