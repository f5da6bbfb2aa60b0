package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// Recovery describes what RecoverCorruptedFile did with a damaged file.
type Recovery struct {
	QuarantinedTo string
	Restored      bool
	Skeleton      bool
}

// Quarantine moves filePath into <dataDir>/quarantine and returns its new location.
func Quarantine(dataDir, filePath string, now time.Time) (string, error) {
	quarantineDir := filepath.Join(dataDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), now.Format("20060102T150405.000"))
	dst := filepath.Join(quarantineDir, name)
	if err := os.Rename(filePath, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dst, nil
}

// RestoreFromBackup copies filePath.bak over filePath if the backup carries a valid header.
func RestoreFromBackup(filePath, fileType string) error {
	bakPath := filePath + ".bak"
	content, err := os.ReadFile(bakPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := ValidateSchemaHeaderFromBytes(content, fileType); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

func GenerateSkeleton(filePath string, fileType string) error {
	key, ok := validFileTypes[fileType]
	if !ok {
		return fmt.Errorf("unknown file_type %q", fileType)
	}
	content, err := yamlv3.Marshal(map[string]any{
		"schema_version": CurrentSchemaVersion,
		"file_type":      fileType,
		key:              []any{},
	})
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	return AtomicWriteRaw(filePath, content)
}

// RecoverCorruptedFile quarantines filePath, then restores it from its backup
// or, failing that, replaces it with an empty skeleton.
func RecoverCorruptedFile(dataDir, filePath, fileType string, now time.Time) (Recovery, error) {
	var rec Recovery
	dst, err := Quarantine(dataDir, filePath, now)
	if err != nil {
		return rec, fmt.Errorf("quarantine failed: %w", err)
	}
	rec.QuarantinedTo = dst

	if err := RestoreFromBackup(filePath, fileType); err == nil {
		rec.Restored = true
		return rec, nil
	}

	if err := GenerateSkeleton(filePath, fileType); err != nil {
		return rec, fmt.Errorf("skeleton generation failed: %w", err)
	}
	rec.Skeleton = true
	return rec, nil
}
