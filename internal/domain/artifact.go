package domain

import (
	"errors"
	"strings"
	"time"
)

// Artifact describes one named, fingerprinted physical output of a stage.
// The bytes themselves live in the artifact store; the struct carries only
// identity and integrity metadata.
type Artifact struct {
	Name      string
	Location  string
	Stage     string
	Format    string
	SHA256    string
	SizeBytes int64
	CreatedAt time.Time
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("artifact name is required")
	}
	if strings.TrimSpace(a.Location) == "" {
		return errors.New("artifact location is required")
	}
	if strings.TrimSpace(a.SHA256) == "" {
		return errors.New("artifact content sha256 is required")
	}
	return nil
}
