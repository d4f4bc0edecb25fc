// Package main is the entry point for arpfuzzer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/arpfuzzer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
