// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/linsalrob/Koverage/internal"
	"github.com/linsalrob/Koverage/utils"
)

// A Contig is a reference sequence as listed in the reference assembly,
// identified by name, with a positive length.
type Contig struct {
	Name   string
	Length int64
}

// A Registry holds the ordered set of contigs of one reference assembly.
// It is built once, before any sample processing starts, and is read-only
// afterwards, so it can be shared freely between sample pipelines. Every
// per-contig table downstream is keyed and ordered against it.
type Registry struct {
	contigs []Contig
	index   map[string]int32
}

// A DuplicateContigError reports two reference entries sharing a name.
type DuplicateContigError struct {
	Path string
	Name string
}

func (err *DuplicateContigError) Error() string {
	return fmt.Sprintf("duplicate contig %v in reference %v", err.Name, err.Path)
}

// A MalformedHeaderError reports a reference listing entry that cannot
// be parsed.
type MalformedHeaderError struct {
	Path   string
	Line   int
	Reason string
}

func (err *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed reference listing %v line %v: %v", err.Path, err.Line, err.Reason)
}

// An InvalidContigLengthError reports a contig with a zero or negative
// length. Lengths appear in the denominators of the per-kilobase coverage
// metrics, so such an entry would poison every downstream table.
type InvalidContigLengthError struct {
	Path   string
	Name   string
	Length int64
}

func (err *InvalidContigLengthError) Error() string {
	return fmt.Sprintf("invalid length %v for contig %v in reference %v", err.Length, err.Name, err.Path)
}

func (registry *Registry) add(path string, line int, name string, length int64) error {
	if length <= 0 {
		return &InvalidContigLengthError{Path: path, Name: name, Length: length}
	}
	if _, found := registry.index[name]; found {
		return &DuplicateContigError{Path: path, Name: name}
	}
	registry.index[name] = int32(len(registry.contigs))
	registry.contigs = append(registry.contigs, Contig{Name: name, Length: length})
	return nil
}

// Contigs returns the contigs in reference order. The returned slice is
// shared; callers must not modify it.
func (registry *Registry) Contigs() []Contig {
	return registry.contigs
}

// Size returns the number of contigs.
func (registry *Registry) Size() int {
	return len(registry.contigs)
}

// Index returns the reference-order index for the given contig name.
func (registry *Registry) Index(name string) (int32, bool) {
	index, found := registry.index[name]
	return index, found
}

// Length returns the length of the given contig.
func (registry *Registry) Length(name string) (int64, bool) {
	if index, found := registry.index[name]; found {
		return registry.contigs[index].Length, true
	}
	return 0, false
}

func newRegistry() *Registry {
	return &Registry{index: make(map[string]int32)}
}

// ParseFai parses an FAI index file into a Registry. Only the name and
// length columns are consumed; the offset columns are validated for
// presence and otherwise ignored.
func ParseFai(filename string) (*Registry, error) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	registry := newRegistry()

	scanner := bufio.NewScanner(f)

	for line := 1; scanner.Scan(); line++ {
		b := bytes.Split(scanner.Bytes(), []byte("\t"))
		if len(b) != 5 {
			return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "invalid number of entries"}
		}
		length, err := strconv.ParseInt(string(b[1]), 10, 64)
		if err != nil {
			return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: fmt.Sprintf("bad length field %q", b[1])}
		}
		if err := registry.add(filename, line, string(b[0]), length); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if registry.Size() == 0 {
		return nil, &MalformedHeaderError{Path: filename, Line: 0, Reason: "empty fai file"}
	}

	return registry, nil
}

func contigFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	return string(b[i:j])
}

// ScanFasta sequentially scans a FASTA file, which may be gzip or
// zstandard compressed, and builds a Registry from its headers and
// sequence line lengths. The sequences themselves are not retained;
// coverage statistics never need the bases, only the contig lengths.
func ScanFasta(filename string) (*Registry, error) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	reader, decomp := utils.HandleCompressed(bufio.NewReader(f))
	if decomp != nil {
		defer internal.Close(decomp)
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	scan := func() bool {
		if scanner.Scan() {
			line++
			return true
		}
		return false
	}

	if !scan() {
		return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "empty fasta file"}
	}
	b := scanner.Bytes()
	for len(b) == 0 {
		if !scan() {
			return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "empty fasta file"}
		}
		b = scanner.Bytes()
	}
	if b[0] != '>' {
		return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "missing first header"}
	}

	registry := newRegistry()
	contig := contigFromHeader(b)
	if contig == "" {
		return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "empty header"}
	}
	headerLine := line
	var length int64

scanLoop:
	for scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			if !scan() {
				break scanLoop
			}
			b = scanner.Bytes()
			for len(b) == 0 {
				if !scan() {
					break scanLoop
				}
				b = scanner.Bytes()
			}
			if b[0] != '>' {
				return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "empty line inside sequence"}
			}
		}
		if b[0] == '>' {
			if err := registry.add(filename, headerLine, contig, length); err != nil {
				return nil, err
			}
			contig = contigFromHeader(b)
			if contig == "" {
				return nil, &MalformedHeaderError{Path: filename, Line: line, Reason: "empty header"}
			}
			headerLine = line
			length = 0
		} else {
			length += int64(len(b))
		}
	}
	if err := registry.add(filename, headerLine, contig, length); err != nil {
		return nil, err
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return registry, nil
}

// Open builds a Registry for the given reference. A path ending in .fai
// is parsed as an FAI index directly; otherwise a sibling .fai index is
// preferred when present, and the FASTA itself is scanned as a fallback.
func Open(filename string) (*Registry, error) {
	if strings.HasSuffix(filename, ".fai") {
		return ParseFai(filename)
	}
	if fai := filename + ".fai"; fileExists(fai) {
		return ParseFai(fai)
	}
	return ScanFasta(filename)
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}
