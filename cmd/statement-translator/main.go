package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/draftworx/statement-translator/internal/cli"
	"github.com/draftworx/statement-translator/pkg/log"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	flags := &cli.Flags{}
	rootCmd := cli.CreateRootCommand(flags)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
