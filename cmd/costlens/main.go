package main

import (
	"os"

	"github.com/moolen/costlens/cmd/costlens/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
