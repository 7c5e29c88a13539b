// Command shellhist records shell history locally and syncs it between
// machines.
package main

import (
	"os"

	"github.com/roach88/shellhist/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
