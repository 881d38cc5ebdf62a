package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	server, err := NewMCPServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "familycal-mcp: %v\n", err)
		os.Exit(1)
	}
	server.Run(os.Stdin, os.Stdout, os.Stderr)
}
