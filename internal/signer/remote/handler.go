package remote

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/identity"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/httputil"
	"rxvc/pkg/platform/middleware/request"
)

// Handler serves a Signer over HTTP with the API Client expects.
type Handler struct {
	signer ports.Signer
	logger *slog.Logger
}

// NewHandler wraps signer.
func NewHandler(signer ports.Signer, logger *slog.Logger) *Handler {
	return &Handler{signer: signer, logger: logger}
}

// DocumentSource is implemented by signers that publish their controllers'
// identity documents.
type DocumentSource interface {
	Document(controller domain.DID) (identity.Document, error)
}

// Register mounts the KMS routes. A signer that is also a DocumentSource
// additionally answers universal resolver lookups.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/keys", h.handleKeys)
	r.Post("/v1/sign", h.handleSign)
	r.Post("/v1/derive", h.handleDerive)
	if docs, ok := h.signer.(DocumentSource); ok {
		r.Get("/1.0/identifiers/{did}", h.handleDocument(docs))
	}
}

func (h *Handler) handleDocument(docs DocumentSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did, err := domain.ParseDID(chi.URLParam(r, "did"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		doc, err := docs.Document(did)
		if err != nil {
			h.fail(w, r, "document", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]identity.Document{"didDocument": doc})
	}
}

func (h *Handler) handleKeys(w http.ResponseWriter, r *http.Request) {
	controller, err := domain.ParseDID(r.URL.Query().Get("controller"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	keys, err := h.signer.Keys(r.Context(), controller)
	if err != nil {
		h.fail(w, r, "keys", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, keysResponse{Keys: keys})
}

func (r *signRequest) Validate() error {
	if r.VerificationMethod == "" {
		return dErrors.New(dErrors.CodeValidation, "verificationMethod is required")
	}
	if r.Suite != models.SuiteBBS && r.Suite != models.SuiteJWS {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported suite %q", r.Suite)
	}
	return nil
}

func (r *deriveRequest) Validate() error {
	if r.Credential.Proof == nil {
		return dErrors.New(dErrors.CodeValidation, "credential must be signed")
	}
	return nil
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[signRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	proof, err := h.signer.Sign(ctx, req.Credential, req.VerificationMethod, req.Suite)
	if err != nil {
		h.fail(w, r, "sign", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proofResponse{Proof: proof})
}

func (h *Handler) handleDerive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[deriveRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	proof, err := h.signer.Derive(ctx, req.Credential, req.Fields)
	if err != nil {
		h.fail(w, r, "derive", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, proofResponse{Proof: proof})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.WarnContext(r.Context(), "kms operation failed",
		"op", op,
		"request_id", request.GetRequestID(r.Context()),
		"error", err,
	)
	httputil.WriteError(w, err)
}
