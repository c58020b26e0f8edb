// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package paf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/utils"
)

type FieldParser func(*StringScanner) interface{}

func (sc *StringScanner) ParseChar() interface{} {
	if sc.err != nil {
		return nil
	}
	value, _ := sc.readByteUntil('\t')
	return value
}

func (sc *StringScanner) ParseInteger() interface{} {
	if sc.err != nil {
		return nil
	}
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseInt(value, 10, 64)
	if (err != nil) && (sc.err == nil) {
		sc.err = err
	}
	return val
}

func (sc *StringScanner) ParseFloat() interface{} {
	if sc.err != nil {
		return nil
	}
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseFloat(value, 64)
	if (err != nil) && (sc.err == nil) {
		sc.err = err
	}
	return val
}

func (sc *StringScanner) ParseString() interface{} {
	if sc.err != nil {
		return nil
	}
	value, _ := sc.readUntil('\t')
	return value
}

var optionalFieldParseTable = map[byte]FieldParser{
	'A': (*StringScanner).ParseChar,
	'i': (*StringScanner).ParseInteger,
	'f': (*StringScanner).ParseFloat,
	'Z': (*StringScanner).ParseString,
}

// ParseOptionalField parses a SAM-style TAG:TYPE:VALUE optional field.
func (sc *StringScanner) ParseOptionalField() (tag utils.Symbol, value interface{}) {
	if sc.err != nil {
		return nil, nil
	}
	tagname, ok := sc.readUntil(':')
	if !ok || (len(tagname) != 2) {
		if sc.err == nil {
			sc.err = fmt.Errorf("invalid field tag %v in PAF alignment line", tagname)
		}
		return nil, nil
	}
	tag = utils.Intern(tagname)
	typebyte, ok := sc.readByteUntil(':')
	if !ok {
		if sc.err == nil {
			sc.err = fmt.Errorf("invalid field type %v in PAF alignment line", typebyte)
		}
		return nil, nil
	}
	parser, ok := optionalFieldParseTable[typebyte]
	if !ok {
		if sc.err == nil {
			sc.err = fmt.Errorf("unsupported field type %c in PAF alignment line", typebyte)
		}
		return nil, nil
	}
	return tag, parser(sc)
}

func (sc *StringScanner) doString() string {
	if sc.err != nil {
		return ""
	}
	value, ok := sc.readUntil('\t')
	if !ok {
		if sc.err == nil {
			sc.err = errors.New("missing tabulator in PAF alignment line")
		}
		return ""
	}
	return value
}

func (sc *StringScanner) doInt64() int64 {
	if sc.err != nil {
		return 0
	}
	value, err := strconv.ParseInt(sc.doString(), 10, 64)
	if (err != nil) && (sc.err == nil) {
		sc.err = err
	}
	return value
}

// ParseRecord parses the twelve mandatory PAF columns and any optional
// tags. Check sc.Err() afterwards: a nil error means the record is
// syntactically complete.
func (sc *StringScanner) ParseRecord() *Record {
	rec := new(Record)

	rec.QName = sc.doString()
	rec.QLen = sc.doInt64()
	rec.QStart = sc.doInt64()
	rec.QEnd = sc.doInt64()
	strand, _ := sc.readByteUntil('\t')
	if strand != '+' && strand != '-' && sc.err == nil {
		sc.err = fmt.Errorf("invalid strand %c in PAF alignment line", strand)
	}
	rec.Strand = strand
	rec.TName = sc.doString()
	rec.TLen = sc.doInt64()
	rec.TStart = sc.doInt64()
	rec.TEnd = sc.doInt64()
	rec.Matches = sc.doInt64()
	rec.BlockLen = sc.doInt64()
	mapq, _ := sc.readUntil('\t')
	q, err := strconv.ParseUint(mapq, 10, 8)
	if (err != nil) && (sc.err == nil) {
		sc.err = err
	}
	rec.MapQ = byte(q)

	for sc.Len() > 0 {
		rec.Tags.Set(sc.ParseOptionalField())
	}

	return rec
}

// An InputFile is a PAF file opened for reading, with transparent gzip
// or zstandard decompression.
type InputFile struct {
	file   *os.File
	decomp io.Closer
	reader io.Reader
}

// Open opens a PAF file for reading, with panics in place of errors.
func Open(name string) *InputFile {
	file := internal.FileOpen(name)
	reader, decomp := utils.HandleCompressed(bufio.NewReader(file))
	return &InputFile{file: file, decomp: decomp, reader: reader}
}

// Reader returns the reader to consume the decompressed PAF stream from.
func (input *InputFile) Reader() io.Reader {
	return input.reader
}

// Close closes the PAF file, with panics in place of errors.
func (input *InputFile) Close() {
	if input.decomp != nil {
		internal.Close(input.decomp)
	}
	internal.Close(input.file)
}

// An ArchiveWriter compresses a copy of the raw PAF stream to
// <dir>/<sample>.paf.zst while the stream is being reduced. The archive
// only appears under its final name when Commit is called, so aborted
// sample pipelines never leave a partial archive behind.
type ArchiveWriter struct {
	out *internal.AtomicFile
	enc *zstd.Encoder
}

// CreateArchive creates an ArchiveWriter for the given sample, with
// panics in place of errors.
func CreateArchive(dir, sample string) *ArchiveWriter {
	out := internal.FileCreateAtomic(filepath.Join(dir, sample+".paf.zst"))
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Abort()
		log.Panic(err)
	}
	return &ArchiveWriter{out: out, enc: enc}
}

// Write compresses the given bytes into the archive, so an ArchiveWriter
// can serve as the target of an io.TeeReader around the alignment stream.
func (archive *ArchiveWriter) Write(p []byte) (int, error) {
	return archive.enc.Write(p)
}

// Commit flushes the compressor and moves the archive to its final name,
// with panics in place of errors.
func (archive *ArchiveWriter) Commit() {
	if err := archive.enc.Close(); err != nil {
		log.Panic(err)
	}
	archive.out.Commit()
}

// Abort discards the partial archive, ignoring errors.
func (archive *ArchiveWriter) Abort() {
	_ = archive.enc.Close()
	archive.out.Abort()
}
