package main

import (
	"fmt"
	"os"

	"github.com/amenzel/incbak/pkg/errors"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
