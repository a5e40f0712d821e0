// internal/state/reports.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/urbanflow/internal/types"
)

// ReportMeta describes one exported report binary.
type ReportMeta struct {
	ID        types.ReportID  `json:"id"`
	SessionID types.SessionID `json:"session_id"`
	RunID     string          `json:"run_id"`
	Format    string          `json:"format"`
	Size      int64           `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReportStore stores exported report binaries alongside a JSON sidecar with
// metadata. Files live at sessions/<sessionID>/reports/<reportID>.<format>.
type ReportStore struct {
	root string
}

// NewReportStore creates a file-backed ReportStore rooted at the given
// directory.
func NewReportStore(root string) *ReportStore {
	return &ReportStore{root: root}
}

func (r *ReportStore) reportsDir(sessionID types.SessionID) string {
	return filepath.Join(r.root, "sessions", string(sessionID), "reports")
}

func (r *ReportStore) reportPath(sessionID types.SessionID, id types.ReportID, format string) string {
	return filepath.Join(r.reportsDir(sessionID), string(id)+"."+format)
}

func (r *ReportStore) metaPath(sessionID types.SessionID, id types.ReportID) string {
	return filepath.Join(r.reportsDir(sessionID), string(id)+".meta.json")
}

// Put archives one exported report and returns its id.
func (r *ReportStore) Put(_ context.Context, sessionID types.SessionID, runID, format string, data []byte) (types.ReportID, error) {
	id := types.NewReportID()

	if err := os.MkdirAll(r.reportsDir(sessionID), 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	if err := os.WriteFile(r.reportPath(sessionID, id, format), data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	meta := &ReportMeta{
		ID:        id,
		SessionID: sessionID,
		RunID:     runID,
		Format:    format,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report meta: %w", err)
	}
	if err := os.WriteFile(r.metaPath(sessionID, id), metaData, 0o644); err != nil {
		return "", fmt.Errorf("write report meta: %w", err)
	}
	return id, nil
}

// Get returns the binary payload and metadata for a report.
func (r *ReportStore) Get(_ context.Context, sessionID types.SessionID, id types.ReportID) ([]byte, *ReportMeta, error) {
	metaData, err := os.ReadFile(r.metaPath(sessionID, id))
	if err != nil {
		return nil, nil, fmt.Errorf("read report meta: %w", err)
	}
	var meta ReportMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshal report meta: %w", err)
	}

	data, err := os.ReadFile(r.reportPath(sessionID, id, meta.Format))
	if err != nil {
		return nil, nil, fmt.Errorf("read report: %w", err)
	}
	return data, &meta, nil
}

// List returns metadata for all reports archived under a session.
func (r *ReportStore) List(_ context.Context, sessionID types.SessionID) ([]*ReportMeta, error) {
	pattern := filepath.Join(r.reportsDir(sessionID), "*.meta.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob reports: %w", err)
	}

	metas := make([]*ReportMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read report meta: %w", err)
		}
		var meta ReportMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal report meta: %w", err)
		}
		metas = append(metas, &meta)
	}
	return metas, nil
}
