// cmd/unirun/main.go
//
// This is the entry point for the UniRun terminal client.
//
// Flow:
// 1. Resolve the working directory and load .unirun/config.yaml
// 2. Apply command-line overrides (user, token, API URL)
// 3. Launch the TUI, or serve the mock API with `unirun mock`

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
