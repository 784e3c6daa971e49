package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"

	"github.com/lanternsoft/reverie/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const appName = "reverie"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func main() {
	// Optional .env for API keys; absence is not an error.
	_ = godotenv.Load()

	if level := os.Getenv("REVERIE_LOGGING_LEVEL"); level != "" {
		logger.SetLevel(level)
	}

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
