package main

import (
	"os"

	"github.com/shahbajlive/flowrun/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
