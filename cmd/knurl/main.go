// Command knurl runs the parameter sync pipeline headless: list a graph's
// nodes and bindings, render it with parameter overrides, export its
// artifact or print a gauge.
package main

import (
	"fmt"
	"os"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	app := newCLIApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
