// Command api runs the authd account authentication service.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
