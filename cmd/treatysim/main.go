package main

import (
	"os"

	"github.com/treatylens/treatysim/cmd/treatysim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
