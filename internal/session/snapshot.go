package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/abdullah-az/ai-exam/internal/model"
)

// FileSnapshotSink persists the latest state of each in-progress session as a
// JSON file, so an interrupted attempt can be inspected or recovered after a
// crash. Writes are best-effort; failures are logged and never surface to the
// answering student.
type FileSnapshotSink struct {
	dir string
}

// NewFileSnapshotSink creates the snapshot directory if needed.
func NewFileSnapshotSink(dir string) (*FileSnapshotSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileSnapshotSink{dir: dir}, nil
}

// SaveSnapshot writes the session to <dir>/<session-id>.json via a temp file
// rename, so a crash mid-write never leaves a truncated snapshot.
func (s *FileSnapshotSink) SaveSnapshot(sess model.ExamSession) {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		slog.Error("marshal session snapshot", "session_id", sess.ID, "error", err)
		return
	}
	path := filepath.Join(s.dir, sess.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("write session snapshot", "session_id", sess.ID, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Error("finalize session snapshot", "session_id", sess.ID, "error", err)
	}
}

// Discard removes the snapshot of a session that submitted or was abandoned.
func (s *FileSnapshotSink) Discard(sessionID string) {
	path := filepath.Join(s.dir, sessionID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove session snapshot", "session_id", sessionID, "error", err)
	}
}
