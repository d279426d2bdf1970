// Package cmd provides CLI commands for the deliorder binary.
package cmd

import "github.com/urfave/cli/v2"

// Global flags, read by every command through the context lineage.
var (
	// ConfigFlag points at a deliorder.yaml. Without it ./deliorder.yaml is
	// used when present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to deliorder.yaml",
		EnvVars: []string{"DELIORDER_CONFIG"},
	}

	// RegistryFlag overrides registry.backend from the config file.
	RegistryFlag = &cli.StringFlag{
		Name:  "registry",
		Usage: "Registry backend: remote, redis, sqlite, memory",
	}

	// VerboseFlag sends structured logs to stderr.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Write structured logs to stderr",
	}
)

// Shared flags for read-only output.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for receive and history.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (receive, history only)",
	}
)

// GlobalFlags returns the flags accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		RegistryFlag,
		VerboseFlag,
	}
}

// ReadOnlyFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// withReadOnly appends the shared output flags to flags.
func withReadOnly(flags ...cli.Flag) []cli.Flag {
	return append(flags, ReadOnlyFlags()...)
}
