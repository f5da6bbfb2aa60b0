package model

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// IDType is the prefix of a record id. Ids look like
// alarm_<unix seconds>_<8 hex digits> and sort by creation second.
type IDType string

const (
	IDTypeAlarm    IDType = "alarm"
	IDTypeReminder IDType = "remind"
)

var idPattern = regexp.MustCompile(`^(alarm|remind)_([0-9]{10})_[0-9a-f]{8}$`)

func GenerateID(t IDType) (string, error) {
	return GenerateIDAt(t, time.Now())
}

// GenerateIDAt is GenerateID with an explicit creation instant.
func GenerateIDAt(t IDType, at time.Time) (string, error) {
	switch t {
	case IDTypeAlarm, IDTypeReminder:
	default:
		return "", fmt.Errorf("unknown id type %q", t)
	}
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	return fmt.Sprintf("%s_%010d_%x", t, at.Unix(), suffix), nil
}

func ValidateID(id string) bool {
	return idPattern.MatchString(id)
}

// ParseID splits a well-formed id into its type and creation second.
func ParseID(id string) (IDType, time.Time, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("malformed id %q", id)
	}
	sec, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed id %q: %w", id, err)
	}
	return IDType(m[1]), time.Unix(sec, 0), nil
}
