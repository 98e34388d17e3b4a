package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, buildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime })
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3", "v1.2.3"},
		{"v1.2", "v1.2.0"},
		{"0.0.0-dev", "v0.0.0-dev"},
		{"garbage", "v0.0.0-dev"},
		{"", "v0.0.0-dev"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestGetCurrentVersion(t *testing.T) {
	withBuild(t, "1.4.0", "unknown", "unknown")
	assert.Equal(t, "1.4.0", GetCurrentVersion("prod"))
	assert.Equal(t, "1.4.0-dev", GetCurrentVersion("dev"))

	withBuild(t, "0.0.0-dev", "unknown", "unknown")
	assert.Equal(t, "0.0.0-dev", GetCurrentVersion("dev"))
	assert.Equal(t, "0.0.0-dev", GetCurrentVersion("prod"))
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("1.2.3", "1.2.3"))
	assert.True(t, IsVersionGreaterOrEqualThan("1.10.0", "1.9.9"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.9.0", "1.0.0"))
}

func TestStrings(t *testing.T) {
	withBuild(t, "1.0.0", "0123456789abcdef", "2026-01-02T03:04:05Z")
	assert.Equal(t, "1.0.0-01234567", String())
	assert.Equal(t, "Version=1.0.0 Commit=01234567 BuildTime=2026-01-02T03:04:05Z", StringFull())
	assert.Equal(t, Info{Version: "1.0.0", Commit: "01234567", BuildTime: "2026-01-02T03:04:05Z", Mode: "prod"}, Current("prod"))

	withBuild(t, "1.0.0", "unknown", "unknown")
	assert.Equal(t, "1.0.0", String())
	assert.Equal(t, "Version=1.0.0", StringFull())
	assert.Equal(t, Info{Version: "1.0.0-dev", Mode: "dev"}, Current("dev"))
}
