// Package uds carries CLI requests to the running daemon over a Unix socket
// using length-prefixed JSON frames.
package uds

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

const ProtocolVersion = 1

// SocketName is the socket filename inside the data dir.
const SocketName = "daemon.sock"

const maxFrameSize = 4 * 1024 * 1024

const (
	CmdPing           = "ping"
	CmdStatus         = "status"
	CmdAlarmList      = "alarm_list"
	CmdAlarmAdd       = "alarm_add"
	CmdAlarmDelete    = "alarm_delete"
	CmdAlarmToggle    = "alarm_toggle"
	CmdAlarmUpcoming  = "alarm_upcoming"
	CmdNextAlarm      = "next_alarm"
	CmdReminderList   = "reminder_list"
	CmdReminderAdd    = "reminder_add"
	CmdReminderDelete = "reminder_delete"
	CmdActive         = "active"
	CmdSnooze         = "snooze"
	CmdDismiss        = "dismiss"
	CmdCheck          = "check"
	CmdRoutine        = "routine"
	CmdTest           = "test"
	CmdConfig         = "config"
	CmdConfigSet      = "config_set"
	CmdLights         = "lights"
	CmdAC             = "ac"
	CmdShutdown       = "shutdown"
)

type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorDetail) Error() string {
	return e.Code + ": " + e.Message
}

const (
	ErrCodeProtocolMismatch = "PROTOCOL_MISMATCH"
	ErrCodeUnknownCommand   = "UNKNOWN_COMMAND"
	ErrCodeInternal         = "INTERNAL"
	ErrCodeValidation       = "VALIDATION"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeNoActiveAlarm    = "NO_ACTIVE_ALARM"
	ErrCodeWrongAnswer      = "WRONG_ANSWER"
	ErrCodeInvalidSnooze    = "INVALID_SNOOZE"
	ErrCodeSnoozeLimit      = "SNOOZE_LIMIT"
	ErrCodeBusy             = "BUSY"
)

func NewRequest(command string, params any) (*Request, error) {
	req := &Request{ProtocolVersion: ProtocolVersion, Command: command}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// Decode unmarshals the request params into v. Empty params leave v untouched.
func (r *Request) Decode(v any) error {
	if len(r.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func SuccessResponse(data any) *Response {
	resp := &Response{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ErrorResponse(ErrCodeInternal, fmt.Sprintf("marshal response: %v", err))
		}
		resp.Data = raw
	}
	return resp
}

// ErrorResponse builds a failed response. data, when non-nil, travels with
// the error, e.g. the replacement question after a wrong answer.
func ErrorResponse(code, message string, data ...any) *Response {
	resp := &Response{Error: &ErrorDetail{Code: code, Message: message}}
	if len(data) > 0 && data[0] != nil {
		if raw, err := json.Marshal(data[0]); err == nil {
			resp.Data = raw
		}
	}
	return resp
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the response's error detail, or nil on success.
func (r *Response) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}

// WriteFrame writes v as [4-byte big-endian length][JSON payload].
func WriteFrame(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := io.Copy(conn, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func ReadFrame(conn net.Conn, v any) error {
	var length uint32
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	if length > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
