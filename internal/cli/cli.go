// Package cli parses command-line arguments into the options the app needs
// to start.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options is what the command line can override. Everything else comes
// from the config file and the environment.
type Options struct {
	ConfigPath string
	Port       int
	LogFormat  string
	LogLevel   string
}

// Parse processes command-line arguments. It returns the parsed options,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	flagSet := flag.NewFlagSet("doorbot", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
doorbot - World of Doors voice appointment agent.

Answers Twilio voice webhooks, bridges callers into a Daily SIP room, and
runs the scheduling conversation over Deepgram, the configured LLM, and
ElevenLabs.

Usage:
  doorbot [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to an HCL config file. Defaults and environment variables apply without one.")
	portFlag := flagSet.Int("port", 0, "HTTP port for the webhook server. 0 keeps the configured port.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &Options{
		ConfigPath: *configFlag,
		Port:       *portFlag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	}, false, nil
}
