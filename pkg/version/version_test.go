package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnelineVersionString(t *testing.T) {
	defer func(r, b string) { Revision, BuildId = r, b }(Revision, BuildId)

	Revision, BuildId = "", ""
	assert.Equal(t, Version, OnelineVersionString())
	Revision, BuildId = "abc123", "42"
	assert.Equal(t, Version+".abc123.42", OnelineVersionString())
}

func TestWriteVersionInfo(t *testing.T) {
	defer func(r string) { Revision = r }(Revision)
	Revision = "abc123"

	var buf bytes.Buffer
	WriteVersionInfo(&buf)
	assert.Contains(t, buf.String(), "Git Commit: abc123")
	assert.Contains(t, buf.String(), "Go Version")
}
