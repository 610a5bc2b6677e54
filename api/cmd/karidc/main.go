// Command karidc works on model documents offline: fingerprints, diffs,
// flattened server views and whole-domain validation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
