package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	cases := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"unknown commit", "1.0.0", "unknown", "1.0.0"},
		{"short commit omitted", "1.0.0", "abc", "1.0.0"},
		{"long commit truncated", "1.0.0", "abc1234567890", "1.0.0 (abc1234)"},
		{"exactly seven chars omitted", "2.0.0", "1234567", "2.0.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Version, Commit = tc.version, tc.commit
			if got := Info(); got != tc.want {
				t.Errorf("Info() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origDate }()

	Version, Commit, BuildDate = "1.2.3", "abcdef123456", "2026-01-15"

	got := Full()
	for _, part := range []string{"wisp version 1.2.3", "Commit: abcdef123456", "Built: 2026-01-15"} {
		if !strings.Contains(got, part) {
			t.Errorf("Full() = %q, want to contain %q", got, part)
		}
	}
}

func TestDefaultVersionIsSemver(t *testing.T) {
	if len(strings.Split(Version, ".")) < 2 {
		t.Errorf("Version %q does not look like semver", Version)
	}
}
