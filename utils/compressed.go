// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package utils

import (
	"bufio"
	"io"
	"log"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func hasMagic(buf *bufio.Reader, magic []byte) bool {
	head, err := buf.Peek(len(magic))
	if err != nil && err != io.EOF {
		log.Panic(err)
	}
	if len(head) < len(magic) {
		return false
	}
	for i, b := range magic {
		if head[i] != b {
			return false
		}
	}
	return true
}

// HandleCompressed checks if the given reader produces a gzip or
// zstandard stream by looking at the initial bytes. It then returns a
// decompressing reader, or the given reader unchanged. The returned
// closer releases the decompressor's resources and is nil for plain
// input; it does not close the underlying file.
func HandleCompressed(buf *bufio.Reader) (io.Reader, io.Closer) {
	switch {
	case hasMagic(buf, gzipMagic):
		gz, err := gzip.NewReader(buf)
		if err != nil {
			log.Panic(err)
		}
		return gz, gz
	case hasMagic(buf, zstdMagic):
		dec, err := zstd.NewReader(buf)
		if err != nil {
			log.Panic(err)
		}
		rc := dec.IOReadCloser()
		return rc, rc
	default:
		return buf, nil
	}
}
