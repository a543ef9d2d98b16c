// Package cdn wraps the external image-hosting service.
//
// The service follows the Cloudflare Images API shape: multipart uploads
// that return an image id plus named variants, delete by id, per-variant
// delivery URLs, and edge-cache purge by URL. Every call carries a request
// timeout and reports its latency plus a correlation id for tracing (the
// service's ray header when present, otherwise a generated UUID).
//
// Probe and Fetch work without credentials so entry health checks and
// relink downloads keep functioning when the integration is not
// configured; the authenticated calls return ErrNotConfigured instead.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by authenticated operations when the CDN
// integration has no account id or API token.
var ErrNotConfigured = errors.New("cdn integration is not configured")

// correlationHeader is the upstream tracing header echoed back in results.
const correlationHeader = "CF-Ray"

// Config holds the settings for the CDN client.
type Config struct {
	// AccountID is the image service account identifier.
	AccountID string

	// APIToken authenticates upload, delete, and purge calls.
	APIToken string

	// BaseURL is the API endpoint, e.g. https://api.cloudflare.com/client/v4.
	BaseURL string

	// DeliveryBaseURL is the public delivery prefix, e.g.
	// https://imagedelivery.net/<account-hash>.
	DeliveryBaseURL string

	// PurgeZoneID is the zone used for edge-cache purge requests.
	PurgeZoneID string

	// Timeout bounds each API call.
	Timeout time.Duration
}

// Client is the HTTP client for the image service.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. A zero Timeout defaults to 30s.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.DeliveryBaseURL = strings.TrimRight(cfg.DeliveryBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether authenticated operations can be attempted.
func (c *Client) Configured() bool {
	return c.cfg.AccountID != "" && c.cfg.APIToken != ""
}

// UploadResult describes a successfully created asset.
type UploadResult struct {
	ImageID       string
	Variant       string
	DeliveryURL   string
	LatencyMS     int64
	CorrelationID string
}

// DeleteResult describes an origin deletion.
type DeleteResult struct {
	OK            bool
	LatencyMS     int64
	CorrelationID string
}

// PurgeResult describes an edge-cache invalidation request.
type PurgeResult struct {
	OK             bool
	LatencyMS      int64
	CorrelationIDs []string
}

// ProbeResult describes a liveness check against a delivery or external URL.
type ProbeResult struct {
	Status        int
	LatencyMS     int64
	ContentLength int64
	CorrelationID string
}

// apiEnvelope is the service's standard response wrapper.
type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// uploadResponse is the result payload of an image upload.
type uploadResponse struct {
	ID       string   `json:"id"`
	Variants []string `json:"variants"`
}

// Upload creates a new asset from raw bytes and returns its id and the
// delivery URL for the requested variant.
func (c *Client) Upload(ctx context.Context, filename string, data []byte, variant string) (UploadResult, error) {
	if !c.Configured() {
		return UploadResult{}, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("build upload form: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1", c.cfg.BaseURL, c.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	correlation := correlationID(resp)
	var payload uploadResponse
	if err := decodeEnvelope(resp, &payload); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{
		ImageID:       payload.ID,
		Variant:       variant,
		DeliveryURL:   c.DeliveryURL(payload.ID, variant),
		LatencyMS:     latency,
		CorrelationID: correlation,
	}, nil
}

// Delete removes the origin asset. It never touches catalog state; origin
// deletion and catalog detachment are independent actions.
func (c *Client) Delete(ctx context.Context, imageID string) (DeleteResult, error) {
	if !c.Configured() {
		return DeleteResult{}, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1/%s", c.cfg.BaseURL, c.cfg.AccountID, imageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return DeleteResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete request: %w", err)
	}
	defer resp.Body.Close()

	correlation := correlationID(resp)
	if err := decodeEnvelope(resp, nil); err != nil {
		return DeleteResult{LatencyMS: latency, CorrelationID: correlation}, err
	}

	return DeleteResult{OK: true, LatencyMS: latency, CorrelationID: correlation}, nil
}

// DeliveryURL builds the public delivery URL for an image id and variant.
func (c *Client) DeliveryURL(imageID, variant string) string {
	if c.cfg.DeliveryBaseURL == "" {
		return ""
	}
	return c.cfg.DeliveryBaseURL + "/" + imageID + "/" + variant
}

// Purge requests edge-cache invalidation for a single delivery URL.
func (c *Client) Purge(ctx context.Context, url string) (PurgeResult, error) {
	if !c.Configured() || c.cfg.PurgeZoneID == "" {
		return PurgeResult{}, ErrNotConfigured
	}

	payload, err := json.Marshal(map[string][]string{"files": {url}})
	if err != nil {
		return PurgeResult{}, err
	}

	endpoint := fmt.Sprintf("%s/zones/%s/purge_cache", c.cfg.BaseURL, c.cfg.PurgeZoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return PurgeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return PurgeResult{}, fmt.Errorf("purge request: %w", err)
	}
	defer resp.Body.Close()

	ids := []string{correlationID(resp)}
	if err := decodeEnvelope(resp, nil); err != nil {
		return PurgeResult{LatencyMS: latency, CorrelationIDs: ids}, err
	}

	return PurgeResult{OK: true, LatencyMS: latency, CorrelationIDs: ids}, nil
}

// Probe issues a liveness check against a URL. It prefers HEAD and falls
// back to GET for hosts that reject HEAD; the body is discarded either way.
func (c *Client) Probe(ctx context.Context, url string) (ProbeResult, error) {
	res, err := c.probeOnce(ctx, http.MethodHead, url)
	if err == nil && res.Status != http.StatusMethodNotAllowed {
		return res, nil
	}
	if err != nil {
		return ProbeResult{}, err
	}
	return c.probeOnce(ctx, http.MethodGet, url)
}

func (c *Client) probeOnce(ctx context.Context, method, url string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return ProbeResult{}, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return ProbeResult{
		Status:        resp.StatusCode,
		LatencyMS:     latency,
		ContentLength: resp.ContentLength,
		CorrelationID: correlationID(resp),
	}, nil
}

// Fetch downloads up to maxBytes from an external URL. Used by relink to
// pull the original bytes before re-uploading them to the CDN.
func (c *Client) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}
	return data, nil
}

// decodeEnvelope checks the HTTP status and the service's success flag,
// optionally unmarshalling the result payload into out.
func decodeEnvelope(resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image service returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		msg := "unknown error"
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return fmt.Errorf("image service error: %s", msg)
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// correlationID returns the upstream ray id, or a generated UUID so every
// call has something to trace by.
func correlationID(resp *http.Response) string {
	if id := resp.Header.Get(correlationHeader); id != "" {
		return id
	}
	return uuid.New().String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
