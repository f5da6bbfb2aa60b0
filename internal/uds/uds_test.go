package uds

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortSockPath keeps socket paths under the 104-byte limit on macOS.
func shortSockPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "sw-uds-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "t.sock")
}

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	path := shortSockPath(t)
	server := NewServer(path, nil)
	client := NewClient(path)
	client.SetTimeout(5 * time.Second)
	t.Cleanup(func() { _ = server.Stop() })
	return server, client
}

func TestFraming_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	req, err := NewRequest(CmdSnooze, map[string]int{"minutes": 5})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- WriteFrame(a, req) }()

	var got Request
	require.NoError(t, ReadFrame(b, &got))
	require.NoError(t, <-errc)

	assert.Equal(t, ProtocolVersion, got.ProtocolVersion)
	assert.Equal(t, CmdSnooze, got.Command)
	var params struct{ Minutes int }
	require.NoError(t, got.Decode(&params))
	assert.Equal(t, 5, params.Minutes)
}

func TestFraming_RejectsOversizedFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}()
	var req Request
	err := ReadFrame(b, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}

func TestServer_DispatchesHandlers(t *testing.T) {
	server, client := startServer(t)
	server.Handle(CmdPing, func(ctx context.Context, req *Request) *Response {
		return SuccessResponse(map[string]string{"pong": "ok"})
	})
	server.Handle(CmdDismiss, func(ctx context.Context, req *Request) *Response {
		var p struct {
			Answer string `json:"answer"`
		}
		if err := req.Decode(&p); err != nil {
			return ErrorResponse(ErrCodeValidation, err.Error())
		}
		if p.Answer != "42" {
			return ErrorResponse(ErrCodeWrongAnswer, "wrong answer", map[string]string{"question": "6 x 7"})
		}
		return SuccessResponse(nil)
	})
	require.NoError(t, server.Start())

	var pong map[string]string
	require.NoError(t, client.Call(CmdPing, nil, &pong))
	assert.Equal(t, "ok", pong["pong"])

	resp, err := client.SendCommand(CmdDismiss, map[string]string{"answer": "41"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeWrongAnswer, resp.Error.Code)
	var hint map[string]string
	require.NoError(t, resp.Decode(&hint))
	assert.Equal(t, "6 x 7", hint["question"])

	require.NoError(t, client.Call(CmdDismiss, map[string]string{"answer": "42"}, nil))
}

func TestServer_ProtocolMismatchAndUnknownCommand(t *testing.T) {
	server, client := startServer(t)
	require.NoError(t, server.Start())

	resp, err := client.Send(&Request{ProtocolVersion: 99, Command: CmdPing})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)

	err = client.Call("bogus", nil, nil)
	var detail *ErrorDetail
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, ErrCodeUnknownCommand, detail.Code)
}

func TestServer_ConcurrentClients(t *testing.T) {
	server, client := startServer(t)
	server.Handle(CmdStatus, func(ctx context.Context, req *Request) *Response {
		return SuccessResponse(map[string]bool{"running": true})
	})
	require.NoError(t, server.Start())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Call(CmdStatus, nil, nil)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_SocketLifecycle(t *testing.T) {
	path := shortSockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	server := NewServer(path, nil)
	require.NoError(t, server.Start())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, server.Stop())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_HandlerContextHonorsTimeout(t *testing.T) {
	path := shortSockPath(t)
	server := NewServer(path, nil, WithConnTimeout(100*time.Millisecond))
	t.Cleanup(func() { _ = server.Stop() })
	server.Handle(CmdCheck, func(ctx context.Context, req *Request) *Response {
		<-ctx.Done()
		return ErrorResponse(ErrCodeBusy, ctx.Err().Error())
	})
	require.NoError(t, server.Start())

	client := NewClient(path)
	client.SetTimeout(5 * time.Second)
	_, err := client.SendCommand(CmdCheck, nil)
	// The handler outlives the connection deadline so the write fails.
	assert.Error(t, err)
}

func TestServer_HandlerPanicBecomesInternal(t *testing.T) {
	server, client := startServer(t)
	server.Handle(CmdRoutine, func(ctx context.Context, req *Request) *Response {
		panic("lights exploded")
	})
	server.Handle(CmdPing, func(ctx context.Context, req *Request) *Response { return nil })
	require.NoError(t, server.Start())

	resp, err := client.SendCommand(CmdRoutine, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternal, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "lights exploded")

	resp, err = client.SendCommand(CmdPing, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestClient_DaemonNotRunning(t *testing.T) {
	client := NewClient(shortSockPath(t))
	client.SetTimeout(time.Second)
	_, err := client.SendCommand(CmdPing, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
	assert.True(t, strings.Contains(err.Error(), "shilawake daemon"))
}

func TestResponses(t *testing.T) {
	ok := SuccessResponse(nil)
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Data)
	assert.NoError(t, ok.Err())

	bad := ErrorResponse(ErrCodeNotFound, "alarm not found")
	assert.False(t, bad.Success)
	assert.EqualError(t, bad.Err(), "NOT_FOUND: alarm not found")
}
