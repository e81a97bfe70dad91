package segstore

import (
	"fmt"
	"regexp"
)

var keyComponent = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// ValidateComponent reports whether value is usable as an owner or job key
// component.
func ValidateComponent(kind, value string) error {
	if !keyComponent.MatchString(value) || value == "." || value == ".." {
		return fmt.Errorf("invalid %s %q", kind, value)
	}
	return nil
}

// SinglePath is where an unsplit recording is stored.
func SinglePath(owner, jobID string) string {
	return owner + "/" + jobID + ".wav"
}

// ChunkPath is where chunk index of a split recording is stored.
func ChunkPath(owner, jobID string, index int) string {
	return fmt.Sprintf("%s/%s/chunk-%03d.wav", owner, jobID, index)
}

// ManifestPath is where the chunk manifest of a split recording is stored.
func ManifestPath(owner, jobID string) string {
	return owner + "/" + jobID + "/manifest.json"
}
