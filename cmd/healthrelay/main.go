package main

import (
	"os"

	"healthrelay/cmd/healthrelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
