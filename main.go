// Package main is the entry point for tapstack.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/tapstack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
