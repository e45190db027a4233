// Package main is the entry point for the forgectl CLI.
// forgectl is the operator terminal tool for inspecting and recovering
// workflows through the coordinator API.
package main

import (
	"os"

	"docforge/cmd/forgectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
