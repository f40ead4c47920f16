// Command imxscan scans a file or directory tree for i.MX Authentication
// Containers, legacy IVTs, and FIT/FDT blobs, and reports what it finds.
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
