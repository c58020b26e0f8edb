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
	"io"
	"log"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/paf"
	"github.com/linsalrob/Koverage/utils"
)

// screenedFlags drop a record before filtering, mirroring what an
// aligner run with secondary output disabled would never emit.
const screenedFlags = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.QCFail

// adapt maps a SAM record onto the alignment fields the filters and the
// accumulator consume. Must not be called on unmapped records.
func adapt(rec *sam.Record) paf.Record {
	strand := byte('+')
	if rec.Flags&sam.Reverse != 0 {
		strand = '-'
	}
	return paf.Record{
		QName:    rec.Name,
		QLen:     int64(rec.Seq.Length),
		Strand:   strand,
		TName:    rec.Ref.Name(),
		TLen:     int64(rec.Ref.Len()),
		TStart:   int64(rec.Pos),
		TEnd:     int64(rec.End()),
		BlockLen: int64(rec.Len()),
		MapQ:     rec.MapQ,
	}
}

func (acc *Accumulator) countRecords(read func() (*sam.Record, error)) {
	for {
		rec, err := read()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Panic(err)
		}
		acc.total++
		if rec.Flags&screenedFlags != 0 {
			acc.filtered++
			continue
		}
		adapted := adapt(rec)
		if !acc.filter(&adapted) {
			acc.filtered++
			continue
		}
		acc.place(adapted.TName, adapted.TStart)
	}
}

// CountBAM consumes an entire BAM file, with panics in place of errors.
// Unmapped, secondary, supplementary and QC-failed records count toward
// the observed total but are dropped before filtering.
func (acc *Accumulator) CountBAM(name string) {
	fh := internal.FileOpen(name)
	defer internal.Close(fh)
	brdr, err := bam.NewReader(fh, 2)
	if err != nil {
		log.Panic(err)
	}
	defer internal.Close(brdr)
	acc.countRecords(brdr.Read)
}

// CountSAM consumes an entire SAM text file, optionally compressed,
// with panics in place of errors. Record screening is as for CountBAM.
func (acc *Accumulator) CountSAM(name string) {
	fh := internal.FileOpen(name)
	defer internal.Close(fh)
	reader, decomp := utils.HandleCompressed(bufio.NewReader(fh))
	if decomp != nil {
		defer internal.Close(decomp)
	}
	srdr, err := sam.NewReader(reader)
	if err != nil {
		log.Panic(err)
	}
	acc.countRecords(srdr.Read)
}
