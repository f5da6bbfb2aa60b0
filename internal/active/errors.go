package active

import "errors"

var (
	ErrNoActiveAlarm = errors.New("no active alarm")
	ErrInvalidSnooze = errors.New("invalid snooze duration")
	ErrSnoozeLimit   = errors.New("snooze limit reached")
	ErrInvalidAnswer = errors.New("answer must be a number")
	ErrWrongAnswer   = errors.New("wrong answer")
)

// WrongAnswerError carries the replacement question after a failed dismiss.
type WrongAnswerError struct {
	Question string
}

func (e *WrongAnswerError) Error() string {
	return "wrong answer, new question: " + e.Question
}

func (e *WrongAnswerError) Is(target error) bool {
	return target == ErrWrongAnswer
}
