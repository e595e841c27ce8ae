package main

import (
	"os"

	"rush/internal/cmd"
)

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:]))
}
