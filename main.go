// Koverage: compute per-contig coverage statistics from read alignments.
// Copyright (c) 2023-2026 Flinders University.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the MIT license; see the LICENSE file in the
// repository root for the full terms.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the LICENSE
// file for more details.

// Koverage computes per-contig coverage statistics from read
// alignments against a reference assembly.
//
// Please see https://github.com/linsalrob/Koverage for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/linsalrob/Koverage/cmd"
)

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		cmd.PrintHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "coverage":
		err = cmd.Coverage()
	case "counts":
		err = cmd.Counts()
	case "depth":
		err = cmd.Depth()
	case "merge":
		err = cmd.Merge()
	case "help", "-help", "--help", "-h", "--h":
		cmd.PrintHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		cmd.PrintHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
