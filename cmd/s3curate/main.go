// Command s3curate deduplicates, validates and replaces curated Parquet tables.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/s3-curate/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
