package main

import (
	"os"

	"mailrules/cmd/mailrules/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
