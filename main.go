// Package main provides the entry point for smtsim, a functional simulator
// for a four-strand SMT vector processor.
//
// For the full CLI, use: go run ./cmd/smtsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("smtsim - SMT vector processor simulator")
	fmt.Println("")
	fmt.Println("Usage: smtsim [options] <image>...")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -mode       normal, cosim, debug or script")
	fmt.Println("  -config     Path to simulator configuration JSON file")
	fmt.Println("  -trace      Print the commit trace")
	fmt.Println("  -bench      Run the built-in microbenchmarks")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/smtsim -h' for the full list.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/smtsim' instead.")
	}
}
