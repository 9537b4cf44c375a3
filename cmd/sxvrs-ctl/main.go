// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/diagnostics"
	"github.com/zebatus/sxvrs-go/internal/menu"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

// run is the main entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "validate":
		return runValidate(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "diagnose":
		return runDiagnose(commandArgs)
	case "menu":
		return runMenu(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'sxvrs-ctl help' for usage)", command)
	}
}

func runHelp() error {
	fmt.Printf(`sxvrs-ctl v%s

USAGE:
    sxvrs-ctl [COMMAND] [OPTIONS]

COMMANDS:
    help              Show this help message
    version           Show version information
    validate          Validate configuration file
    status            Show camera recording status
    diagnose          Run system diagnostics
    menu              Launch interactive management menu

OPTIONS:
    --config PATH     Path to configuration file (default: %s)
    --json            Emit machine-readable output (status only)

EXAMPLES:
    sxvrs-ctl validate --config=/etc/sxvrs/config.yaml
    sxvrs-ctl status --json
    sxvrs-ctl diagnose
    sxvrs-ctl menu
`, Version, config.ConfigFilePath)
	return nil
}

func runVersion() error {
	fmt.Println("sxvrs-ctl")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// runValidate loads and validates a configuration file.
func runValidate(args []string) error {
	configPath := config.ConfigFilePath
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		}
	}

	fmt.Printf("Validating configuration: %s\n\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("Loaded %d camera configuration(s)\n", len(cfg.Recorders))

	if len(cfg.Recorders) > 0 {
		names := make([]string, 0, len(cfg.Recorders))
		for name := range cfg.Recorders {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("\nConfigured cameras:")
		for _, name := range names {
			fmt.Printf("  - %s\n", name)
		}
	}

	return nil
}

// CameraStatus is one entry of the status command's JSON output.
type CameraStatus struct {
	Name   string `json:"name"`
	Locked bool   `json:"locked"`
}

// StatusOutput is the JSON output format for the status command.
type StatusOutput struct {
	CameraCount int            `json:"camera_count"`
	Cameras     []CameraStatus `json:"cameras"`
}

// runStatus reports which configured cameras currently hold an active lock
// file, which is as close as a CLI-only tool can get to "is recording" short
// of querying the daemon's health endpoint or command bus directly.
func runStatus(args []string) error {
	configPath := config.ConfigFilePath
	lockDir := "/var/run/sxvrs"
	jsonOutput := false
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--lock-dir="):
			lockDir = strings.TrimPrefix(args[i], "--lock-dir=")
		case args[i] == "--json" || args[i] == "-j":
			jsonOutput = true
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	names := make([]string, 0, len(cfg.Recorders))
	for name := range cfg.Recorders {
		names = append(names, name)
	}
	sort.Strings(names)

	out := StatusOutput{CameraCount: len(names)}
	for _, name := range names {
		_, err := os.Stat(filepath.Join(lockDir, name+".lock"))
		out.Cameras = append(out.Cameras, CameraStatus{Name: name, Locked: err == nil})
	}

	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%d camera(s) configured\n\n", out.CameraCount)
	for _, cam := range out.Cameras {
		state := "stopped"
		if cam.Locked {
			state = "running"
		}
		fmt.Printf("  %-20s %s\n", cam.Name, state)
	}

	return nil
}

// runDiagnose runs the diagnostics suite and prints a human-readable report.
func runDiagnose(args []string) error {
	opts := diagnostics.DefaultOptions()
	runner := diagnostics.NewRunner(opts)

	report, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("diagnostics run failed: %w", err)
	}

	fmt.Println("sxvrs System Diagnostics")
	fmt.Println("========================")
	fmt.Println()
	for _, check := range report.Checks {
		fmt.Printf("%-30s %s\n", check.Name, check.Status)
		if check.Message != "" {
			fmt.Printf("  %s\n", check.Message)
		}
	}
	fmt.Println()
	fmt.Printf("%d ok, %d warning, %d critical, %d error, %d skipped (of %d)\n",
		report.Summary.OK, report.Summary.Warning, report.Summary.Critical,
		report.Summary.Error, report.Summary.Skipped, report.Summary.Total)

	if report.Summary.Critical > 0 || report.Summary.Error > 0 {
		return fmt.Errorf("%d check(s) failed", report.Summary.Critical+report.Summary.Error)
	}
	return nil
}

// runMenu launches the interactive admin TUI.
func runMenu(args []string) error {
	m := menu.CreateMainMenu()
	return m.Display()
}
