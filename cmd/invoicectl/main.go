// Command invoicectl is the operator CLI for the invoice processing workflow.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/JaimeStill/invoiceflow/internal/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "invoicectl: load env file:", err)
		os.Exit(cli.ExitFailure)
	}

	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "invoicectl:", err)
		os.Exit(cli.ExitCode(err))
	}
}
