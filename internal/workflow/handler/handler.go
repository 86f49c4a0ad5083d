// Package handler exposes the prescription workflow over HTTP. The caller's
// DID comes from the X-Actor-DID header set by the authenticating gateway.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rxvc/internal/audit"
	"rxvc/internal/credential/models"
	"rxvc/internal/decision"
	"rxvc/internal/disclosure"
	"rxvc/internal/platform/middleware"
	"rxvc/internal/workflow"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/httputil"
	"rxvc/pkg/requestcontext"
)

// Service defines the workflow operations the handler calls.
type Service interface {
	IssuePrescription(ctx context.Context, req workflow.IssuePrescriptionRequest) (models.Record, error)
	Credential(ctx context.Context, actor domain.DID, id string) (models.Record, error)
	VerifyForPharmacy(ctx context.Context, pharmacy domain.DID, prescriptionID string) (disclosure.Disclosure, error)
	CreateDispensingProof(ctx context.Context, req workflow.CreateDispensingRequest) (workflow.DispensingResult, error)
	ConfirmReceipt(ctx context.Context, req workflow.ConfirmReceiptRequest) (models.Record, error)
	VerifyInsuranceClaim(ctx context.Context, req decision.ClaimRequest) (workflow.ClaimDecision, error)
	GetDisclosure(ctx context.Context, actor domain.DID, credentialID, frame string) (disclosure.Disclosure, error)
	AuditFullDisclosure(ctx context.Context, req workflow.AuditRequest) (audit.FullDisclosure, audit.LogEntry, error)
	RevokePrescription(ctx context.Context, doctor domain.DID, prescriptionID, reason string) (models.Record, error)
	GetStatistics(ctx context.Context) (workflow.Statistics, error)
}

// Handler wires workflow endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
	// handoffBase prefixes the prescription id in QR handoff codes.
	handoffBase string
}

// New constructs a workflow handler. handoffBase is the URL a patient
// wallet resolves a scanned prescription id against.
func New(service Service, logger *slog.Logger, handoffBase string) *Handler {
	return &Handler{
		service:     service,
		logger:      logger,
		handoffBase: strings.TrimRight(handoffBase, "/"),
	}
}

// Register mounts the workflow routes. Every route requires an actor.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(h.logger))

		r.Post("/prescriptions", h.handleIssuePrescription)
		r.Get("/credentials/{id}", h.handleGetCredential)
		r.Get("/prescriptions/{id}/qr", h.handlePrescriptionQR)
		r.Post("/prescriptions/{id}/verify", h.handleVerifyForPharmacy)
		r.Post("/prescriptions/{id}/dispense", h.handleDispense)
		r.Post("/prescriptions/{id}/revoke", h.handleRevoke)
		r.Post("/dispensings/{id}/confirm", h.handleConfirm)
		r.Post("/claims", h.handleVerifyClaim)
		r.Get("/credentials/{id}/disclosures/{frame}", h.handleGetDisclosure)
		r.Post("/audit/prescriptions/{id}", h.handleAudit)
		r.Get("/statistics", h.handleStatistics)
	})
}

func (h *Handler) handleIssuePrescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[IssuePrescriptionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.IssuePrescription(ctx, workflow.IssuePrescriptionRequest{
		Doctor:  requestcontext.ActorDID(ctx),
		Patient: req.parsedPatient,
		Claims:  req.Claims,
	})
	if err != nil {
		h.fail(ctx, w, "issue prescription", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(rec))
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.Credential(ctx, requestcontext.ActorDID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "get credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(rec))
}

func (h *Handler) handleVerifyForPharmacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	disc, err := h.service.VerifyForPharmacy(ctx, requestcontext.ActorDID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "verify for pharmacy", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, disc)
}

func (h *Handler) handleDispense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DispenseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.CreateDispensingProof(ctx, workflow.CreateDispensingRequest{
		Pharmacy:       requestcontext.ActorDID(ctx),
		PrescriptionID: chi.URLParam(r, "id"),
		Claims:         req.claims(),
	})
	if err != nil {
		h.fail(ctx, w, "dispense", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, DispensingResponse{
		CredentialResponse: toCredentialResponse(res.Record),
		FailedChecks:       res.Fraud.Failed,
	})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ConfirmRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.ConfirmReceipt(ctx, workflow.ConfirmReceiptRequest{
		Patient:      requestcontext.ActorDID(ctx),
		DispensingID: chi.URLParam(r, "id"),
		Notes:        req.Notes,
	})
	if err != nil {
		h.fail(ctx, w, "confirm receipt", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(rec))
}

func (h *Handler) handleVerifyClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.service.VerifyInsuranceClaim(ctx, decision.ClaimRequest{
		Insurer:        requestcontext.ActorDID(ctx),
		PrescriptionID: req.PrescriptionID,
		DispensingID:   req.DispensingID,
		ClaimAmount:    req.ClaimAmount,
	})
	if err != nil {
		h.fail(ctx, w, "verify claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetDisclosure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	disc, err := h.service.GetDisclosure(ctx, requestcontext.ActorDID(ctx), chi.URLParam(r, "id"), chi.URLParam(r, "frame"))
	if err != nil {
		h.fail(ctx, w, "get disclosure", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, disc)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	full, entry, err := h.service.AuditFullDisclosure(ctx, workflow.AuditRequest{
		Auditor:        requestcontext.ActorDID(ctx),
		PrescriptionID: chi.URLParam(r, "id"),
		Reason:         req.Reason,
		Token:          strings.TrimSpace(token),
	})
	if err != nil {
		h.fail(ctx, w, "audit disclosure", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditResponse{
		Disclosure: full.Disclosure,
		Entry: AuditLog{
			ID:             entry.ID,
			Auditor:        entry.Auditor.String(),
			PrescriptionID: entry.PrescriptionID,
			Reason:         entry.Reason,
			Timestamp:      entry.Timestamp,
			FrameVersion:   entry.FrameVersion,
			EntryHash:      entry.EntryHash,
		},
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.RevokePrescription(ctx, requestcontext.ActorDID(ctx), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(ctx, w, "revoke prescription", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(rec))
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.GetStatistics(ctx)
	if err != nil {
		h.fail(ctx, w, "statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// fail logs at a level matching the error's class and writes it.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := []any{
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"actor", requestcontext.ActorDID(ctx).String(),
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "workflow request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "workflow request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
