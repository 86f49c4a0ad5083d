// Package remote talks to a KMS over HTTP. Calls are never retried here:
// a duplicated Sign could produce two signatures over the same claims.
package remote

import (
	"bytes"
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

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/circuit"
	"rxvc/pkg/platform/httputil"
)

// ErrCircuitOpen is wrapped into the unavailable error returned while the
// breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

const maxResponseBytes = 1 << 20

// Client implements ports.Signer against a KMS exposing Handler's API.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		if b != nil {
			cl.breaker = b
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a client for the KMS at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("kms"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type keysResponse struct {
	Keys []models.KeyRef `json:"keys"`
}

type signRequest struct {
	Credential         models.Credential `json:"credential"`
	VerificationMethod string            `json:"verificationMethod"`
	Suite              models.Suite      `json:"suite"`
}

type deriveRequest struct {
	Credential models.Credential `json:"credential"`
	Fields     []string          `json:"fields"`
}

type proofResponse struct {
	Proof models.Proof `json:"proof"`
}

func (c *Client) Keys(ctx context.Context, controller domain.DID) ([]models.KeyRef, error) {
	var resp keysResponse
	endpoint := "/v1/keys?controller=" + url.QueryEscape(controller.String())
	if err := c.call(ctx, http.MethodGet, endpoint, controller.String(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (c *Client) Sign(ctx context.Context, unsigned models.Credential, verificationMethod string, suite models.Suite) (models.Proof, error) {
	var resp proofResponse
	body := signRequest{Credential: unsigned, VerificationMethod: verificationMethod, Suite: suite}
	if err := c.call(ctx, http.MethodPost, "/v1/sign", verificationMethod, body, &resp); err != nil {
		return models.Proof{}, err
	}
	return resp.Proof, nil
}

func (c *Client) Derive(ctx context.Context, signed models.Credential, fields []string) (models.Proof, error) {
	var resp proofResponse
	body := deriveRequest{Credential: signed, Fields: fields}
	if err := c.call(ctx, http.MethodPost, "/v1/derive", signed.ID, body, &resp); err != nil {
		return models.Proof{}, err
	}
	return resp.Proof, nil
}

// call performs one request. Transport failures and 5xx responses count
// against the breaker; KMS domain errors are passed through with their code.
func (c *Client) call(ctx context.Context, method, path, ref string, in, out any) error {
	if !c.breaker.Allow() {
		return dErrors.Unavailable(ports.SignerCollaborator, ref, ErrCircuitOpen)
	}
	err := c.do(ctx, method, path, ref, in, out)
	if dErrors.HasCode(err, dErrors.CodeUnavailable) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "kms circuit opened", "ref", ref)
		}
		return err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "kms circuit closed")
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, ref string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode kms request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build kms request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return dErrors.Unavailable(ports.SignerCollaborator, ref, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return dErrors.Unavailable(ports.SignerCollaborator, ref, err)
	}
	if resp.StatusCode >= 500 {
		return dErrors.Unavailable(ports.SignerCollaborator, ref, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var e httputil.ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
			return dErrors.Wrap(fmt.Errorf("http %d", resp.StatusCode), dErrors.CodeBadRequest, "kms rejected "+ref)
		}
		return &dErrors.Error{Code: dErrors.Code(e.Error), Message: e.Description, Collaborator: ports.SignerCollaborator, Ref: ref}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return dErrors.Unavailable(ports.SignerCollaborator, ref, fmt.Errorf("decode kms response: %w", err))
	}
	return nil
}

var _ ports.Signer = (*Client)(nil)
