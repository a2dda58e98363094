// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-integrations inspects and changes the integration manager
// and widget permission settings stored in a Matrix user's account
// data, lists and manages room widgets, and watches /sync for changes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newApp(os.Stdout).root().Execute(os.Args[1:])
}
