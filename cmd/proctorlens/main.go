package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different outcomes
const (
	ExitClean   = 0 // Session analyzed, verdict CLEAN
	ExitFlagged = 1 // Session analyzed, verdict SUSPICIOUS or CHEATING
	ExitError   = 2 // Configuration or runtime error
)

// FlaggedError indicates that analysis completed successfully but the
// session's verdict was not CLEAN.
type FlaggedError struct {
	SessionID string
	Verdict   string
}

func (e *FlaggedError) Error() string {
	return fmt.Sprintf("session %s flagged as %s", e.SessionID, e.Verdict)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var flagged *FlaggedError
		if errors.As(err, &flagged) {
			os.Exit(ExitFlagged)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
