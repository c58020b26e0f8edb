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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord("contig_1\t42\t7")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Contig != "contig_1" || rec.Pos != 42 || rec.Depth != 7 {
		t.Error("ParseRecord failed")
	}
}

func TestParseRecordErrors(t *testing.T) {
	for i, line := range []string{
		"",
		"contig_1",
		"contig_1\t42",
		"\t42\t7",
		"contig_1\t\t7",
		"contig_1\tx\t7",
		"contig_1\t42\t",
		"contig_1\t42\tx",
		"contig_1\t42\t-1",
	} {
		if _, err := ParseRecord(line); err == nil {
			t.Errorf("ParseRecord error %v failed", i+1)
		}
	}
}

func TestOpenCompressed(t *testing.T) {
	const content = "contig_1\t1\t4\ncontig_1\t2\t5\n"
	dir := t.TempDir()
	plain := filepath.Join(dir, "depth.tsv")
	if err := os.WriteFile(plain, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	zipped := filepath.Join(dir, "depth.tsv.gz")
	fh, err := os.Create(zipped)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(fh)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := fh.Close(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{plain, zipped} {
		input := Open(name)
		data, err := io.ReadAll(input.Reader())
		if err != nil {
			t.Fatal(err)
		}
		input.Close()
		if string(data) != content {
			t.Errorf("Open %v failed", filepath.Base(name))
		}
	}
}
