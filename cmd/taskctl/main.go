package main

import (
	"os"

	"taskdesk/taskctl/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(cli.Options{
		Version: version,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}, os.Args[1:]))
}
