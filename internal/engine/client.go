// Package engine is the only code path allowed to hold the secret that
// authorizes calls into the external workflow engine. Browsers and API
// callers never see it; they reach the engine exclusively through this
// forwarding client.
package engine

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zhinao/geoscan/internal/config"
)

// Sentinel errors for engine forwarding failures.
var (
	ErrMissingField        = errors.New("missing required field")
	ErrUnknownEndpoint     = errors.New("unknown engine endpoint")
	ErrEngineUnreachable   = errors.New("workflow engine unreachable")
	ErrEngineTimeout       = errors.New("workflow engine timeout")
	ErrEngineRejected      = errors.New("workflow engine rejected request")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// SharedSecretHeader carries the secret in "shared" auth mode.
const SharedSecretHeader = "zhinao-geo-scan"

// Forwarder hands a job off to the workflow engine. Implementations must not
// retry; retry policy belongs to the caller.
type Forwarder interface {
	Forward(ctx context.Context, userID uuid.UUID, payload Payload) error
}

// HTTPClient implements Forwarder against the engine's webhook API.
type HTTPClient struct {
	baseURL  string
	secret   string
	authMode string
	client   *http.Client
	now      func() time.Time
}

// NewHTTPClient creates a forwarding client from engine config.
func NewHTTPClient(cfg config.EngineConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		secret:   cfg.Secret,
		authMode: cfg.AuthMode,
		client:   &http.Client{Timeout: cfg.Timeout},
		now:      time.Now,
	}
}

// Forward validates the payload, builds the minimal outbound body and POSTs
// it to {base}/{endpoint}. A non-2xx upstream response is a failure; the
// upstream body is inspected only for a machine-readable error code and is
// never surfaced verbatim.
func (c *HTTPClient) Forward(ctx context.Context, userID uuid.UUID, payload Payload) error {
	endpoint := payload.Endpoint()
	if !AllowedEndpoint(endpoint) {
		return fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user_id", ErrMissingField)
	}

	ts := c.now().UTC()
	body := payload.fields()
	body["user_id"] = userID.String()
	body["timestamp"] = ts.Format(time.RFC3339)

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	u := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch c.authMode {
	case "shared":
		req.Header.Set(SharedSecretHeader, c.secret)
	default:
		// HMAC over the exact bytes on the wire, keyed by the server-held
		// secret. The engine recomputes and compares.
		req.Header.Set("X-Signature", Sign(raw, c.secret))
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts.Unix(), 10))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if code := upstreamErrorCode(resp.Body); code == "insufficient_credits" {
		return ErrInsufficientCredits
	}
	return fmt.Errorf("%w: status %d", ErrEngineRejected, resp.StatusCode)
}

// Sign computes the hex-encoded HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// upstreamErrorCode extracts a machine-readable error code from an engine
// error response, tolerating arbitrary or non-JSON bodies. Only the code is
// kept; free-text upstream errors never propagate to callers.
func upstreamErrorCode(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	if body.Code != "" {
		return body.Code
	}
	return body.Error
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
}

// Compile-time check that HTTPClient implements Forwarder.
var _ Forwarder = (*HTTPClient)(nil)
