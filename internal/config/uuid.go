package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstanceUUID reads dir/uuid, generating and persisting one via
// google/uuid if absent. Spec.md §6: "Only the UUID file is written by
// the core."
func InstanceUUID(dir string) (string, error) {
	path := filepath.Join(dir, "uuid")
	if b, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(b))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}
