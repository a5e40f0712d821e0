// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string
type MessageID int64
type ReportID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewReportID() ReportID {
	return ReportID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
