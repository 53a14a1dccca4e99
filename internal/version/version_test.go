package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := [3]string{Version, GitCommit, BuildTime}
	t.Cleanup(func() { Version, GitCommit, BuildTime = old[0], old[1], old[2] })

	Version, GitCommit, BuildTime = "1.2.3", "abc1234", "2026-01-02T03:04:05Z"
	assert.Equal(t, "sigscan 1.2.3 (commit abc1234, built 2026-01-02T03:04:05Z)", String())
}
