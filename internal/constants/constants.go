// Package constants defines the constants shared across the moderation web service.
package constants

import "log/slog"

const (
	// CmdName is the name of the web service command.
	CmdName = "ubuntu-moderation-web"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultMaxUploadBytes is the largest accepted submission, matching the 10MB image limit advertised by the form.
	DefaultMaxUploadBytes = 10 << 20
)

// Version is the version of the service. It is overridden at build time with -ldflags.
var Version = "Dev"
