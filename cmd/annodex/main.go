// Package main provides the entry point for the annodex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/annodex/cmd/annodex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
