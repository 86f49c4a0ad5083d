package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/circuit"
)

// ErrCircuitOpen is wrapped into the unavailable error returned while the
// breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

const maxDocumentBytes = 1 << 20

// HTTPResolver queries a universal resolver
// (GET {base}/1.0/identifiers/{did}).
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// HTTPOption configures an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPResolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithBreaker sets the circuit breaker guarding the resolver.
func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(r *HTTPResolver) {
		if b != nil {
			r.breaker = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(r *HTTPResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewHTTPResolver creates a resolver for the universal resolver at baseURL.
func NewHTTPResolver(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("identity-resolver"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolutionResult is the universal resolver envelope. Some resolvers return
// the bare document instead.
type resolutionResult struct {
	DIDDocument *Document `json:"didDocument"`
}

// Resolve fetches and validates the document for did. Transport failures and
// 5xx responses count against the breaker and surface as unavailable; a 404
// is not_found and does not.
func (r *HTTPResolver) Resolve(ctx context.Context, did domain.DID) (Document, error) {
	if !r.breaker.Allow() {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), ErrCircuitOpen)
	}

	doc, err := r.fetch(ctx, did)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			if _, change := r.breaker.RecordFailure(); change.Opened {
				r.logger.WarnContext(ctx, "identity resolver circuit opened", "did", did.String())
			}
		}
		return Document{}, err
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "identity resolver circuit closed")
	}
	return doc, nil
}

func (r *HTTPResolver) fetch(ctx context.Context, did domain.DID) (Document, error) {
	endpoint := r.baseURL + "/1.0/identifiers/" + url.PathEscape(did.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build resolve request: %w", err)
	}
	req.Header.Set("Accept", "application/did+ld+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Document{}, dErrors.NotFound(Collaborator, did.String())
	case resp.StatusCode >= 500:
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return Document{}, dErrors.Wrap(fmt.Errorf("http %d", resp.StatusCode), dErrors.CodeBadRequest, "identity resolver rejected "+did.String())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), err)
	}

	var envelope resolutionResult
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), fmt.Errorf("decode document: %w", err))
	}
	var doc Document
	if envelope.DIDDocument != nil {
		doc = *envelope.DIDDocument
	} else if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), fmt.Errorf("decode document: %w", err))
	}
	if err := doc.Validate(did); err != nil {
		return Document{}, dErrors.Unavailable(Collaborator, did.String(), err)
	}
	return doc, nil
}
