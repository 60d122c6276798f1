// =============================================================================
// DC Data Quality - Main Entry Point
// =============================================================================
//
// This is the main entry point for the DC Data Quality CLI application.
// It initializes the Cobra CLI framework and delegates command execution to
// the cmd package.
//
// USAGE:
//   dcqa clean             - Clean all extract workbooks in the input directory
//   dcqa apply-fixes       - Fold reviewed worklists back into the taxonomies
//   dcqa version           - Display the application version
//
// ARCHITECTURE:
//   This application follows a modular design where:
//   - cmd/           : Contains all CLI command definitions (Cobra)
//   - internal/      : Contains core business logic (not for external import)
//   - pkg/           : Contains shared utilities
//   - rules/         : Contains the cleaning rules configuration
//   - taxonomies/    : Contains the taxonomy CSV tables
//
// =============================================================================

package main

import (
	"github.com/dcanalytics/dcqa/cmd"
)

// main is the entry point of the application.
// It simply calls the Execute function from the cmd package, which
// initializes and runs the Cobra CLI.
func main() {
	cmd.Execute()
}
