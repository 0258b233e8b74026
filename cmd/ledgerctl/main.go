package main

import (
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/commands"
	applog "fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger(applog.ComponentCLI)

	root, cleanup := commands.NewRootCommand()
	err := root.Execute()
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}
