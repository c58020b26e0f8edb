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

const (
	// ProgramName is "koverage"
	ProgramName = "koverage"

	// ProgramVersion is the version of the koverage binary
	ProgramVersion = "0.4.1"

	// ProgramURL is the repository for the koverage source code
	ProgramURL = "http://github.com/linsalrob/Koverage"
)
