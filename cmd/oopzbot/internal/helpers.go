package internal

import "fmt"

// Set via -ldflags at build time.
var (
	version   = "dev"
	gitCommit string
	buildTime string
)

func GetVersion() string {
	return version
}

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func BuildTime() string {
	if buildTime == "" {
		return "unknown"
	}
	return buildTime
}
