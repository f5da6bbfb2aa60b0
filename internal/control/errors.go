package control

import (
	"errors"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/uds"
	"github.com/nugrahalabib/moltbot/internal/wake"
)

var (
	ErrBusy         = errors.New("daemon is shutting down")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorCode maps a service error to its wire code.
func ErrorCode(err error) string {
	var ve *model.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.Is(err, active.ErrNoActiveAlarm):
		return uds.ErrCodeNoActiveAlarm
	case errors.Is(err, active.ErrWrongAnswer):
		return uds.ErrCodeWrongAnswer
	case errors.Is(err, active.ErrInvalidSnooze):
		return uds.ErrCodeInvalidSnooze
	case errors.Is(err, active.ErrSnoozeLimit):
		return uds.ErrCodeSnoozeLimit
	case errors.Is(err, store.ErrNotFound):
		return uds.ErrCodeNotFound
	case errors.Is(err, ErrBusy):
		return uds.ErrCodeBusy
	case errors.As(err, &ve),
		errors.Is(err, active.ErrInvalidAnswer),
		errors.Is(err, wake.ErrUnknownRoutine),
		errors.Is(err, wake.ErrUnknownTest),
		errors.Is(err, ErrInvalidInput):
		return uds.ErrCodeValidation
	}
	return uds.ErrCodeInternal
}

// ErrorData returns the payload sent alongside an error response.
func ErrorData(err error) any {
	var wrong *active.WrongAnswerError
	if errors.As(err, &wrong) {
		return map[string]string{"question": wrong.Question}
	}
	return nil
}

// Response converts a service result into a UDS response.
func Response(data any, err error) *uds.Response {
	if err != nil {
		return uds.ErrorResponse(ErrorCode(err), err.Error(), ErrorData(err))
	}
	return uds.SuccessResponse(data)
}
