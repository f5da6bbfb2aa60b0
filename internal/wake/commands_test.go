package wake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugrahalabib/moltbot/internal/model"
)

type fakeRunner struct {
	argv [][]string
	out  []byte
	err  error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.argv = append(f.argv, append([]string{name}, args...))
	return f.out, f.err
}

func TestCommandDevices(t *testing.T) {
	f := &fakeRunner{}
	c := NewCommandDevices(f.run, []string{"python3", "tuya_control.py"}, time.Second)

	require.NoError(t, c.Apply(context.Background(), model.DeviceSetting{Name: "lampu meja", Brightness: 80, Color: "warm"}))
	require.NoError(t, c.AC(context.Background(), ACSetting{Name: "AC Studio", Power: "on", Temperature: 26, Mode: "cool"}))

	assert.Equal(t, [][]string{
		{"python3", "tuya_control.py", "device", "lampu meja", "--power", "on", "--brightness", "80", "--color", "warm"},
		{"python3", "tuya_control.py", "ac", "AC Studio", "--power", "on", "--temp", "26", "--mode", "cool"},
	}, f.argv)
}

func TestCommandSpeaker_DoesNotAliasArgv(t *testing.T) {
	f := &fakeRunner{}
	base := make([]string, 1, 4)
	base[0] = "espeak"
	c := NewCommandSpeaker(f.run, base, time.Second)

	require.NoError(t, c.Announce(context.Background(), "satu"))
	require.NoError(t, c.Announce(context.Background(), "dua"))
	assert.Equal(t, [][]string{{"espeak", "satu"}, {"espeak", "dua"}}, f.argv)
}

func TestCommandSpeaker_ErrorIncludesOutput(t *testing.T) {
	f := &fakeRunner{out: []byte("no voice\n"), err: errors.New("exit status 1")}
	err := NewCommandSpeaker(f.run, []string{"espeak"}, time.Second).Announce(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice")
}

func TestCommandWeather(t *testing.T) {
	f := &fakeRunner{out: []byte("  Hujan ringan 24C\n")}
	line, err := NewCommandWeather(f.run, []string{"wttr"}, time.Second).Report(context.Background(), "Bandung")
	require.NoError(t, err)
	assert.Equal(t, "Hujan ringan 24C", line)
	assert.Equal(t, []string{"wttr", "Bandung"}, f.argv[0])

	_, err = NewCommandWeather(f.run, nil, time.Second).Report(context.Background(), "")
	assert.Error(t, err)
}

func TestBrowserPresenter_Open(t *testing.T) {
	f := &fakeRunner{}
	p := NewBrowserPresenter(f.run, "http://127.0.0.1:8765/")
	p.goos = "linux"

	require.NoError(t, p.Open(context.Background()))
	require.Len(t, f.argv, 2)
	assert.Equal(t, []string{"xdg-open", "http://127.0.0.1:8765/"}, f.argv[0])
	assert.True(t, strings.HasPrefix(f.argv[1][0], "notify-send") || f.argv[1][0] == "osascript")
}
