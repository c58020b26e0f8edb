// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package depth

import (
	"bufio"
	"log"
	"strconv"

	"github.com/linsalrob/Koverage/internal"
)

// WriteStatsTable writes the per-contig depth summary as a tab-separated
// table with one row per registry contig, in registry order. Undefined
// kurtosis renders as NaN.
func WriteStatsTable(filename string, stats []*Stats) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, "Contig\tLength\tPositions\tMeanDepth\tKurtosis\n")
	buf := internal.ReserveByteBuffer()
	for _, s := range stats {
		buf = buf[:0]
		buf = append(buf, s.Contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, s.Length, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, s.NPositions, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, s.Mean(), 'g', 6, 64)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, s.Kurtosis, 'g', 6, 64)
		buf = append(buf, '\n')
		internal.Write(writer, buf)
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}

// WriteHistogramTable writes the bucketed depth histogram as a
// tab-separated table with one row per contig and bucket.
func WriteHistogramTable(filename string, config *Config, stats []*Stats) {
	out := internal.FileCreateAtomic(filename)
	defer out.Abort()
	writer := bufio.NewWriter(out)
	internal.WriteString(writer, "Contig\tBucket\tPositions\n")
	labels := make([]string, config.Size())
	for i := range labels {
		labels[i] = config.BucketLabel(i)
	}
	buf := internal.ReserveByteBuffer()
	for _, s := range stats {
		for i, count := range s.Histogram {
			buf = buf[:0]
			buf = append(buf, s.Contig...)
			buf = append(buf, '\t')
			buf = append(buf, labels[i]...)
			buf = append(buf, '\t')
			buf = strconv.AppendInt(buf, count, 10)
			buf = append(buf, '\n')
			internal.Write(writer, buf)
		}
	}
	internal.ReleaseByteBuffer(buf)
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	out.Commit()
}
