// Package httpproxy is the Cumulocity REST actor (§4.6): it resolves
// external device ids to Cumulocity's internal ids (cached, the cache
// entry invalidated on a 404 so a deleted-and-recreated device is
// re-resolved), creates events, and uploads binaries as multipart
// attachments. Every call carries a bearer token obtained from
// TokenBroker.
package httpproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sync"
	"time"

	"github.com/thin-edge/tedge-core/internal/httpkit"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// TokenSource supplies a fresh bearer token on demand, implemented by
// *TokenBroker in production and a fake in tests.
type TokenSource interface {
	RequestToken(ctx context.Context) (string, error)
}

// Client is the Cumulocity REST proxy. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger

	mu      sync.RWMutex
	idCache map[string]string // externalID -> internalID
}

// New builds a Client against baseURL (e.g. "https://tenant.cumulocity.com").
func New(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		http:    httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		baseURL: baseURL,
		tokens:  tokens,
		logger:  logger,
		idCache: make(map[string]string),
	}
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.RequestToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// ResolveInternalID maps an external device id to Cumulocity's
// internal id, using the in-memory cache unless it was invalidated by
// a prior 404.
func (c *Client) ResolveInternalID(ctx context.Context, externalID string) (string, error) {
	c.mu.RLock()
	if id, ok := c.idCache[externalID]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	endpoint := fmt.Sprintf("%s/identity/externalIds/c8y_Serial/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusNotFound {
		return "", &tedgeerr.ChildDeviceNotRegistered{ExternalID: externalID}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &tedgeerr.HttpStatusError{Code: resp.StatusCode, Endpoint: endpoint, Method: http.MethodGet}
	}

	var body struct {
		ManagedObject struct {
			ID string `json:"id"`
		} `json:"managedObject"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}

	c.mu.Lock()
	c.idCache[externalID] = body.ManagedObject.ID
	c.mu.Unlock()
	return body.ManagedObject.ID, nil
}

// invalidate drops a cached internal id, e.g. after a later call on
// the same device returns a 404.
func (c *Client) invalidate(externalID string) {
	c.mu.Lock()
	delete(c.idCache, externalID)
	c.mu.Unlock()
}

// EventRequest describes an event to create against a managed object.
type EventRequest struct {
	Type string
	Text string
	Time time.Time
	Data map[string]any
}

// CreateEvent posts an event for the device identified by
// externalID and returns Cumulocity's event id.
func (c *Client) CreateEvent(ctx context.Context, externalID string, ev EventRequest) (string, error) {
	internalID, err := c.ResolveInternalID(ctx, externalID)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"source": map[string]string{"id": internalID},
		"type":   ev.Type,
		"text":   ev.Text,
		"time":   ev.Time.Format(time.RFC3339),
	}
	for k, v := range ev.Data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &tedgeerr.HttpError{Endpoint: "event", Reason: err}
	}

	endpoint := c.baseURL + "/event/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	req.Header.Set("Content-Type", "application/vnd.com.nsn.cumulocity.event+json")
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusNotFound {
		c.invalidate(externalID)
		return "", &tedgeerr.ChildDeviceNotRegistered{ExternalID: externalID}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &tedgeerr.HttpStatusError{Code: resp.StatusCode, Endpoint: endpoint, Method: http.MethodPost}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	return created.ID, nil
}

// UploadBinary attaches filename's content to the event identified by
// eventID as a multipart upload.
func (c *Client) UploadBinary(ctx context.Context, eventID, filename, contentType string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return &tedgeerr.HttpError{Endpoint: "binary upload", Reason: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return &tedgeerr.HttpError{Endpoint: "binary upload", Reason: err}
	}
	if err := mw.Close(); err != nil {
		return &tedgeerr.HttpError{Endpoint: "binary upload", Reason: err}
	}

	endpoint := fmt.Sprintf("%s/event/events/%s/binaries", c.baseURL, url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &tedgeerr.HttpError{Endpoint: endpoint, Reason: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return &tedgeerr.HttpStatusError{Code: resp.StatusCode, Endpoint: endpoint, Method: http.MethodPost}
	}
	return nil
}
