package main

import (
	"fmt"
	"os"

	"github.com/palomarmail/palomar/cmd/palomar-admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
