// File: cmd/cherry/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/cherry/cmd"
	"github.com/xkilldash9x/cherry/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
   __      __
  (  )    (  )     cherry %s
   \ \    / /      tell me what to do;
    \ \__/ /       I'll look at the screen and do it.
   (__)  (__)

`

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// main is the entry point of the application.
func main() {
	// The Sentinel - Global Panic Handler
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) == 0 {
		// Without arguments, drop into the goal prompt.
		fmt.Printf(banner, cmd.Version)
		args = []string{"run", "--interactive"}
	}

	if err := cmd.Execute(ctx, args); err != nil {
		// Ctrl+C during a task is a clean exit.
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
	}
}

// handlePanic records a crash in panic.log and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure logs are flushed before proceeding.
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return // Return facilitates testing when osExit is mocked.
		}

		fmt.Fprintf(os.Stderr, "\n----------------------------------------------------------------\n")
		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
		fmt.Fprintf(os.Stderr, "----------------------------------------------------------------\n")
		osExit(2)
	}
}
