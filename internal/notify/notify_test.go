package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewConsole(&out, &errOut)

	c.Success("Logged out successfully")
	c.Error("Invalid username or password")

	assert.Equal(t, "✓ Logged out successfully\n", out.String())
	assert.Equal(t, "✗ Invalid username or password\n", errOut.String())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))

	l.Error("Network error")

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "Network error")
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}

	r.Success("one")
	r.Error("two")
	r.Error("three")

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, Notification{Level: LevelSuccess, Message: "one"}, all[0])
	assert.Equal(t, 1, r.Count(LevelSuccess))
	assert.Equal(t, 2, r.Count(LevelError))

	r.Reset()
	assert.Empty(t, r.All())
}
