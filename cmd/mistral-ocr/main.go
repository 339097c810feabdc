package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spherical/mistral-ocr/cmd/mistral-ocr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitFailure)
	}
}
