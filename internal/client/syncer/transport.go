package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/paperkeep/paperkeep/internal/models"
)

// ErrUnauthorized reports a whole-batch authorization failure: the server
// could not resolve an owner from the bearer token.
var ErrUnauthorized = errors.New("authorization failed")

// Transport sends one batch of mutation descriptors to the server.
type Transport interface {
	SendBatch(ctx context.Context, items []models.BatchItem) (*models.BatchResponse, error)
}

// HTTPTransport implements Transport over the POST /sync/batch contract.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPTransport returns an HTTPTransport with the standard request
// timeout. A timed-out batch counts as one full failure for retry purposes.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SendBatch posts the items and decodes the per-item outcome report.
func (t *HTTPTransport) SendBatch(ctx context.Context, items []models.BatchItem) (*models.BatchResponse, error) {
	body, err := json.Marshal(models.BatchRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.BaseURL+"/sync/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result models.BatchResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode batch response: %w", err)
		}
		return &result, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if envelope.Error == "" {
			envelope.Error = resp.Status
		}
		return nil, fmt.Errorf("server error: %s", envelope.Error)
	}
}

// FetchRecords downloads the owner's active records of one entity type,
// used to hydrate a fresh local store.
func (t *HTTPTransport) FetchRecords(ctx context.Context, entityType models.EntityType) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.BaseURL+"/records/"+string(entityType), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server error: %s", resp.Status)
	}

	var result struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return result.Records, nil
}
