package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3"
	assert.Equal(t, "manifest/1.2.3", UserAgent())
}

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, "Version:    "+Version)
	assert.Contains(t, s, "Git Commit: "+GitCommit)
	assert.Contains(t, s, "Go Version: "+GoVersion)
}

func TestInfo(t *testing.T) {
	info := Info()
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, GoVersion, info["goVersion"])
}
