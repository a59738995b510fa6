package main

import (
	"os"
)

func main() {
	// RunE is never used on ScanCommand: scanMain's error return is consumed
	// by cmd.Mainify, which calls cmd.Fatal (and thus os.Exit) itself. A
	// non-nil error out of Execute here means Cobra rejected the invocation
	// before scanMain ever ran (an unknown flag, for instance), which is
	// exactly the "invalid arguments" case.
	if err := ScanCommand.Execute(); err != nil {
		os.Exit(2)
	}
}
