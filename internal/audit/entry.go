package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"rxvc/pkg/domain"
	platformaudit "rxvc/pkg/platform/audit"
)

// LogEntry records one full disclosure. Entries are append-only.
type LogEntry struct {
	ID               string     `json:"id"`
	Auditor          domain.DID `json:"auditor"`
	PrescriptionID   string     `json:"prescriptionId"`
	Reason           string     `json:"reason"`
	Timestamp        time.Time  `json:"timestamp"`
	FrameVersion     string     `json:"frameVersion"`
	TokenFingerprint string     `json:"tokenFingerprint"`
	EntryHash        string     `json:"entryHash"`
}

// Fingerprint returns the hex SHA-256 of an authorization token. The raw
// token is never stored.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// hashed is the part of an entry covered by EntryHash, in fixed order.
type hashed struct {
	ID               string `json:"id"`
	Auditor          string `json:"auditor"`
	PrescriptionID   string `json:"prescriptionId"`
	Reason           string `json:"reason"`
	Timestamp        string `json:"timestamp"`
	FrameVersion     string `json:"frameVersion"`
	TokenFingerprint string `json:"tokenFingerprint"`
}

// ComputeHash returns the hex SHA-256 over every field except EntryHash. The
// timestamp is hashed at microsecond precision, the finest every sink keeps.
func (e LogEntry) ComputeHash() (string, error) {
	data, err := json.Marshal(hashed{
		ID:               e.ID,
		Auditor:          e.Auditor.String(),
		PrescriptionID:   e.PrescriptionID,
		Reason:           e.Reason,
		Timestamp:        e.Timestamp.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		FrameVersion:     e.FrameVersion,
		TokenFingerprint: e.TokenFingerprint,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Intact reports whether EntryHash still matches the entry.
func (e LogEntry) Intact() bool {
	h, err := e.ComputeHash()
	return err == nil && h == e.EntryHash
}

// ToEvent converts the entry to the stored audit event shape.
func (e LogEntry) ToEvent() platformaudit.Event {
	return platformaudit.Event{
		ID:               e.ID,
		Category:         platformaudit.EventAuditFullDisclosure.Category(),
		Timestamp:        e.Timestamp,
		ActorID:          e.Auditor.String(),
		Subject:          e.PrescriptionID,
		Action:           string(platformaudit.EventAuditFullDisclosure),
		Decision:         "disclosed",
		Reason:           e.Reason,
		FrameVersion:     e.FrameVersion,
		TokenFingerprint: e.TokenFingerprint,
		EntryHash:        e.EntryHash,
	}
}

// FromEvent rebuilds an entry from a stored full-disclosure event.
func FromEvent(ev platformaudit.Event) LogEntry {
	return LogEntry{
		ID:               ev.ID,
		Auditor:          domain.DID(ev.ActorID),
		PrescriptionID:   ev.Subject,
		Reason:           ev.Reason,
		Timestamp:        ev.Timestamp,
		FrameVersion:     ev.FrameVersion,
		TokenFingerprint: ev.TokenFingerprint,
		EntryHash:        ev.EntryHash,
	}
}
