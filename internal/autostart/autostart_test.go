package autostart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct {
	enabled bool
	calls   int
	err     error
}

func (f *fakeEntry) IsEnabled() bool { return f.enabled }

func (f *fakeEntry) Enable() error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.enabled = true
	return nil
}

func (f *fakeEntry) Disable() error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.enabled = false
	return nil
}

func TestSet(t *testing.T) {
	e := &fakeEntry{}

	changed, err := Set(e, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, e.enabled)

	changed, err = Set(e, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, e.calls)

	changed, err = Set(e, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, e.enabled)
}

func TestSet_Error(t *testing.T) {
	e := &fakeEntry{err: errors.New("read-only home")}
	_, err := Set(e, true)
	assert.ErrorContains(t, err, "enable autostart")
}

func TestCommandAndEntry(t *testing.T) {
	assert.Equal(t, []string{"/usr/bin/shilawake", "daemon", "--dir", "/data"}, Command("/usr/bin/shilawake", "/data"))
	assert.Equal(t, []string{"/usr/bin/shilawake", "daemon"}, Command("/usr/bin/shilawake", ""))

	app, err := NewEntry("/data")
	require.NoError(t, err)
	assert.Equal(t, AppName, app.Name)
	assert.Equal(t, "daemon", app.Exec[1])
}
