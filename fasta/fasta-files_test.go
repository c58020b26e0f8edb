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
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeTestFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func registryEqual(registry *Registry, contigs []Contig) bool {
	if registry.Size() != len(contigs) {
		return false
	}
	for i, contig := range registry.Contigs() {
		if contig != contigs[i] {
			return false
		}
	}
	for i, contig := range contigs {
		index, found := registry.Index(contig.Name)
		if !found || index != int32(i) {
			return false
		}
		length, found := registry.Length(contig.Name)
		if !found || length != contig.Length {
			return false
		}
	}
	return true
}

func TestParseFai(t *testing.T) {
	path := writeTestFile(t, "ref.fasta.fai",
		"chr1\t1000\t6\t60\t61\n"+
			"chr2\t2000\t1030\t60\t61\n"+
			"plasmid\t512\t3068\t60\t61\n")
	registry, err := ParseFai(path)
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 1000}, {"chr2", 2000}, {"plasmid", 512}}) {
		t.Error("ParseFai 1 failed")
	}
	if _, found := registry.Index("chr3"); found {
		t.Error("ParseFai 2 failed")
	}
}

func TestParseFaiErrors(t *testing.T) {
	path := writeTestFile(t, "dup.fai",
		"chr1\t1000\t6\t60\t61\nchr1\t2000\t1030\t60\t61\n")
	if _, err := ParseFai(path); err == nil {
		t.Error("ParseFaiErrors 1 failed")
	} else if _, ok := err.(*DuplicateContigError); !ok {
		t.Error("ParseFaiErrors 2 failed")
	}

	path = writeTestFile(t, "short.fai", "chr1\t1000\t6\t60\n")
	if _, err := ParseFai(path); err == nil {
		t.Error("ParseFaiErrors 3 failed")
	} else if _, ok := err.(*MalformedHeaderError); !ok {
		t.Error("ParseFaiErrors 4 failed")
	}

	path = writeTestFile(t, "badlen.fai", "chr1\tlong\t6\t60\t61\n")
	if _, err := ParseFai(path); err == nil {
		t.Error("ParseFaiErrors 5 failed")
	} else if _, ok := err.(*MalformedHeaderError); !ok {
		t.Error("ParseFaiErrors 6 failed")
	}

	path = writeTestFile(t, "zerolen.fai", "chr1\t0\t6\t60\t61\n")
	if _, err := ParseFai(path); err == nil {
		t.Error("ParseFaiErrors 7 failed")
	} else if _, ok := err.(*InvalidContigLengthError); !ok {
		t.Error("ParseFaiErrors 8 failed")
	}

	path = writeTestFile(t, "empty.fai", "")
	if _, err := ParseFai(path); err == nil {
		t.Error("ParseFaiErrors 9 failed")
	}
}

func TestScanFasta(t *testing.T) {
	path := writeTestFile(t, "ref.fasta",
		">chr1 assembled from sample 7\n"+
			"ACGTACGTAC\nGTACGTACGT\nACGTA\n"+
			"\n"+
			">chr2\nACGT\n")
	registry, err := ScanFasta(path)
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 25}, {"chr2", 4}}) {
		t.Error("ScanFasta 1 failed")
	}
}

func TestScanFastaErrors(t *testing.T) {
	path := writeTestFile(t, "noheader.fasta", "ACGT\n")
	if _, err := ScanFasta(path); err == nil {
		t.Error("ScanFastaErrors 1 failed")
	} else if _, ok := err.(*MalformedHeaderError); !ok {
		t.Error("ScanFastaErrors 2 failed")
	}

	path = writeTestFile(t, "dup.fasta", ">chr1\nACGT\n>chr1\nACGT\n")
	if _, err := ScanFasta(path); err == nil {
		t.Error("ScanFastaErrors 3 failed")
	} else if _, ok := err.(*DuplicateContigError); !ok {
		t.Error("ScanFastaErrors 4 failed")
	}

	path = writeTestFile(t, "noseq.fasta", ">chr1\n>chr2\nACGT\n")
	if _, err := ScanFasta(path); err == nil {
		t.Error("ScanFastaErrors 5 failed")
	} else if _, ok := err.(*InvalidContigLengthError); !ok {
		t.Error("ScanFastaErrors 6 failed")
	}

	path = writeTestFile(t, "gap.fasta", ">chr1\nACGT\n\nACGT\n")
	if _, err := ScanFasta(path); err == nil {
		t.Error("ScanFastaErrors 7 failed")
	}
}

func TestScanFastaGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.fasta.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(">chr1\nACGTACGT\n>chr2\nAC\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	registry, err := ScanFasta(path)
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 8}, {"chr2", 2}}) {
		t.Error("ScanFastaGzip 1 failed")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	fastaPath := filepath.Join(dir, "ref.fasta")
	if err := os.WriteFile(fastaPath, []byte(">chr1\nACGTACGT\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// Without an index the FASTA itself is scanned.
	registry, err := Open(fastaPath)
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 8}}) {
		t.Error("Open 1 failed")
	}

	// A sibling .fai index wins over scanning.
	if err := os.WriteFile(fastaPath+".fai", []byte("chr1\t9999\t6\t60\t61\n"), 0600); err != nil {
		t.Fatal(err)
	}
	registry, err = Open(fastaPath)
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 9999}}) {
		t.Error("Open 2 failed")
	}

	registry, err = Open(fastaPath + ".fai")
	if err != nil {
		t.Fatal(err)
	}
	if !registryEqual(registry, []Contig{{"chr1", 9999}}) {
		t.Error("Open 3 failed")
	}
}
