// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileOpen is os.Open with panics in place of errors
func FileOpen(name string) *os.File {
	file, err := os.Open(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// FileCreate is os.Create with panics in place of errors
func FileCreate(name string) *os.File {
	file, err := os.Create(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// Close is closer.Close() with panics in place of errors
func Close(closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Panic(err)
	}
}

// MkdirAll is os.MkdirAll with panics in place of errors
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		log.Panic(err)
	}
}

// Write is writer.Write(p) with panics in place of errors
func Write(writer io.Writer, p []byte) int {
	n, err := writer.Write(p)
	if err != nil {
		log.Panic(err)
	}
	return n
}

// WriteString is io.WriteString(writer, s) with panics in place of errors
func WriteString(writer io.Writer, s string) int {
	n, err := io.WriteString(writer, s)
	if err != nil {
		log.Panic(err)
	}
	return n
}

/*
An AtomicFile becomes visible under its final name only when Commit is
called. Until then all writes go to a uuid-suffixed temporary in the same
directory, so an aborted run never leaves a partial file behind that could
be mistaken for valid output.
*/
type AtomicFile struct {
	*os.File
	name string
}

// FileCreateAtomic creates an AtomicFile for the given final name,
// with panics in place of errors.
func FileCreateAtomic(name string) *AtomicFile {
	if dir := filepath.Dir(name); dir != "." {
		MkdirAll(dir, 0700)
	}
	tmp := name + "." + uuid.New().String() + ".tmp"
	return &AtomicFile{File: FileCreate(tmp), name: name}
}

// Commit closes the temporary file and renames it to its final name,
// with panics in place of errors.
func (file *AtomicFile) Commit() {
	Close(file.File)
	if err := os.Rename(file.File.Name(), file.name); err != nil {
		log.Panic(err)
	}
}

// Abort closes and removes the temporary file, ignoring errors. After a
// successful Commit the temporary no longer exists and Abort does nothing,
// so it is safe to defer Abort and call Commit on the success path.
func (file *AtomicFile) Abort() {
	_ = file.File.Close()
	_ = os.Remove(file.File.Name())
}

func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	return f.Readdirnames(0)
}
