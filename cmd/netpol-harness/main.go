package main

import (
	"os"

	"github.com/mattfenwick/netpol-harness/pkg/cli"
)

func main() {
	os.Exit(cli.RunRootCommand())
}
