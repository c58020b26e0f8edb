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
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/utils"
)

// A Record is one line of a per-position depth stream in the samtools
// depth shape: contig, 1-based position, depth at that position.
type Record struct {
	Contig string
	Pos    int64
	Depth  int64
}

// ParseRecord parses a single tab-separated depth line.
func ParseRecord(line string) (Record, error) {
	i := 0
	for ; i < len(line); i++ {
		if line[i] == '\t' {
			break
		}
	}
	if i == 0 || i == len(line) {
		return Record{}, fmt.Errorf("invalid depth line %v", line)
	}
	contig := line[:i]
	j := i + 1
	for i = j; i < len(line); i++ {
		if line[i] == '\t' {
			break
		}
	}
	if i == j || i == len(line) {
		return Record{}, fmt.Errorf("invalid depth line %v", line)
	}
	pos, err := strconv.ParseInt(line[j:i], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%v, while parsing depth line %v", err, line)
	}
	depth, err := strconv.ParseInt(line[i+1:], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%v, while parsing depth line %v", err, line)
	}
	if depth < 0 {
		return Record{}, fmt.Errorf("negative depth in depth line %v", line)
	}
	return Record{Contig: contig, Pos: pos, Depth: depth}, nil
}

// An InputFile is a depth stream opened for reading, with transparent
// gzip or zstandard decompression.
type InputFile struct {
	file   *os.File
	decomp io.Closer
	reader io.Reader
}

// Open opens a depth file for reading, with panics in place of errors.
func Open(name string) *InputFile {
	file := internal.FileOpen(name)
	reader, decomp := utils.HandleCompressed(bufio.NewReader(file))
	return &InputFile{file: file, decomp: decomp, reader: reader}
}

// Reader returns the reader to consume the decompressed depth stream from.
func (input *InputFile) Reader() io.Reader {
	return input.reader
}

// Close closes the depth file, with panics in place of errors.
func (input *InputFile) Close() {
	if input.decomp != nil {
		internal.Close(input.decomp)
	}
	internal.Close(input.file)
}
