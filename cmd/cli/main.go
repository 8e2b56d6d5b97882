// Package main is the entry point for the sqlflow CLI binary.
package main

import (
	"os"

	"sqlflow/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
