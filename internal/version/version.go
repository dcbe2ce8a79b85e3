// Package version holds the build identity stamped into the wisp binary.
package version

// Overridden at build time:
// go build -ldflags "-X wisp/internal/version.Version=1.0.0 -X wisp/internal/version.Commit=abc123"
var (
	// Version is the semantic version of wisp.
	Version = "0.4.0"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info returns the version, with a short commit hash when one was stamped.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the complete multi-line version report.
func Full() string {
	return "wisp version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
