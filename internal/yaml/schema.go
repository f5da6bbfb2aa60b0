package yaml

import (
	"errors"
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
)

const CurrentSchemaVersion = 1

const (
	FileTypeAlarms    = "shila_alarms"
	FileTypeReminders = "shila_reminders"
)

var validFileTypes = map[string]string{
	FileTypeAlarms:    "alarms",
	FileTypeReminders: "reminders",
}

var ErrSchema = errors.New("schema header invalid")

type SchemaHeader struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

func ValidateSchemaHeader(path string, expectedFileType string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return ValidateSchemaHeaderFromBytes(content, expectedFileType)
}

func ValidateSchemaHeaderFromBytes(content []byte, expectedFileType string) error {
	var header SchemaHeader
	if err := yamlv3.Unmarshal(content, &header); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	switch {
	case header.SchemaVersion < 1:
		return fmt.Errorf("%w: schema_version %d (must be >= 1)", ErrSchema, header.SchemaVersion)
	case header.SchemaVersion > CurrentSchemaVersion:
		return fmt.Errorf("%w: unsupported schema_version %d (max supported: %d)", ErrSchema, header.SchemaVersion, CurrentSchemaVersion)
	case header.FileType == "":
		return fmt.Errorf("%w: missing file_type", ErrSchema)
	}
	if _, ok := validFileTypes[header.FileType]; !ok {
		return fmt.Errorf("%w: unknown file_type %q", ErrSchema, header.FileType)
	}
	if expectedFileType != "" && header.FileType != expectedFileType {
		return fmt.Errorf("%w: file_type mismatch: got %q, expected %q", ErrSchema, header.FileType, expectedFileType)
	}
	return nil
}
