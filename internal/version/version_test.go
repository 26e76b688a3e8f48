package version

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setBuildVars(t *testing.T, v, commit, buildTime string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime
	})
	Version, GitCommit, BuildTime = v, commit, buildTime
}

func TestGet_Defaults(t *testing.T) {
	setBuildVars(t, "", "", "")

	info := Get()
	assert.Equal(t, "dev", info.Version)
	assert.Empty(t, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "soauth/dev", UserAgent())
}

func TestGet_ShortensCommit(t *testing.T) {
	setBuildVars(t, "1.4.0", "0123456789abcdef", "2026-01-02T03:04:05Z")

	info := Get()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "0123456", info.Commit)
	assert.Equal(t, "soauth/1.4.0", UserAgent())
}

func TestFprint(t *testing.T) {
	setBuildVars(t, "1.4.0", "0123456789abcdef", "")

	var buf bytes.Buffer
	Fprint(&buf)

	out := buf.String()
	assert.Contains(t, out, "soauth version 1.4.0\n")
	assert.Contains(t, out, "Git commit: 0123456\n")
	assert.NotContains(t, out, "Build time:")
	assert.Contains(t, out, "Built for: ")
}
