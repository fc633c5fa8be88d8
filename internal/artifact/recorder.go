// Package artifact implements the Artifact Recorder: idempotent,
// round-number-keyed persistence of RoundSnapshots and the final
// Trajectories object (spec.md §4.9, §6.2). The default backend is a
// per-task directory of files; internal/artifact/bunstore.go and
// internal/artifact/wsnotifier.go provide optional additional backends
// that do not replace it.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// Recorder writes RoundSnapshots and the FinalRecord for one task.
type Recorder interface {
	WriteRound(snapshot domain.RoundSnapshot) error
	WriteFinal(record domain.FinalRecord) error
}

// FileRecorder writes one JSON file per round under baseDir/taskID/, keyed
// by round number so repeated writes for the same round overwrite rather
// than append (spec.md §5's idempotence requirement).
type FileRecorder struct {
	dir string
}

// NewFileRecorder creates (if needed) baseDir/taskID and returns a
// FileRecorder rooted there.
func NewFileRecorder(baseDir, taskID string) (*FileRecorder, error) {
	dir := filepath.Join(baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileRecorder{dir: dir}, nil
}

// WriteRound writes round_NNN.json, overwriting any prior write for the
// same round number.
func (r *FileRecorder) WriteRound(snapshot domain.RoundSnapshot) error {
	path := filepath.Join(r.dir, fmt.Sprintf("round_%03d.json", snapshot.Round))
	return writeJSON(path, snapshot)
}

// WriteFinal writes final.json, containing the FinalRecord and its full
// Trajectories.
func (r *FileRecorder) WriteFinal(record domain.FinalRecord) error {
	path := filepath.Join(r.dir, "final.json")
	return writeJSON(path, record)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
