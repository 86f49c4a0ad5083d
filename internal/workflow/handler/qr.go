package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"rxvc/internal/credential/models"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/httputil"
	"rxvc/pkg/requestcontext"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// handlePrescriptionQR renders a PNG the patient's wallet scans to fetch
// the prescription. The code carries the handoff URL, never the credential.
func (h *Handler) handlePrescriptionQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.Credential(ctx, requestcontext.ActorDID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "prescription qr", err)
		return
	}
	if rec.Type != models.TypePrescription {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "credential %s is not a prescription", rec.ID))
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "size must be between 64 and %d", maxQRSize))
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.HandoffURL(rec.ID), qrcode.Medium, size)
	if err != nil {
		h.fail(ctx, w, "prescription qr", dErrors.Wrap(err, dErrors.CodeInternal, "render qr code"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// HandoffURL is the URL encoded into a prescription's QR code.
func (h *Handler) HandoffURL(prescriptionID string) string {
	return h.handoffBase + "/credentials/" + url.PathEscape(prescriptionID)
}
