package handler

import (
	"time"

	"rxvc/internal/credential/models"
	"rxvc/internal/fraud"
)

// CredentialResponse is a stored credential with its record state.
type CredentialResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Status     string            `json:"status"`
	Reference  string            `json:"referenceId,omitempty"`
	FraudScore *int              `json:"fraudScore,omitempty"`
	FraudBand  string            `json:"fraudBand,omitempty"`
	Credential models.Credential `json:"credential"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func toCredentialResponse(rec models.Record) CredentialResponse {
	resp := CredentialResponse{
		ID:         rec.ID,
		Type:       rec.Type.String(),
		Status:     rec.Status.String(),
		Reference:  rec.Reference,
		FraudScore: rec.FraudScore,
		Credential: rec.Credential,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.FraudScore != nil {
		resp.FraudBand = fraud.BandFor(*rec.FraudScore).String()
	}
	return resp
}

// DispensingResponse adds the checks behind the dispensing score.
type DispensingResponse struct {
	CredentialResponse
	FailedChecks []string `json:"failedChecks"`
}

// AuditResponse is the full disclosure with its log entry.
type AuditResponse struct {
	Disclosure any      `json:"disclosure"`
	Entry      AuditLog `json:"auditLogEntry"`
}

// AuditLog is the client view of a log entry.
type AuditLog struct {
	ID             string    `json:"id"`
	Auditor        string    `json:"auditor"`
	PrescriptionID string    `json:"prescriptionId"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
	FrameVersion   string    `json:"frameVersion"`
	EntryHash      string    `json:"entryHash"`
}
