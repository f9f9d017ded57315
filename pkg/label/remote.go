package label

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RemoteClassifier calls an external model server:
// POST <url> {"texts": [...]} -> {"labels": [...]}.
type RemoteClassifier struct {
	url    string
	client *http.Client
}

func NewRemoteClassifier(rawURL string) *RemoteClassifier {
	return &RemoteClassifier{
		url:    rawURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RemoteClassifier) Load(_ context.Context) error {
	if _, err := url.ParseRequestURI(c.url); err != nil {
		return fmt.Errorf("label remote_url: %w", err)
	}
	return nil
}

type remoteRequest struct {
	Texts []string `json:"texts"`
}

type remoteResponse struct {
	Labels []string `json:"labels"`
}

func (c *RemoteClassifier) Predict(ctx context.Context, texts []string) ([]string, error) {
	body, err := json.Marshal(remoteRequest{Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(out.Labels) != len(texts) {
		return nil, fmt.Errorf("classifier returned %d labels for %d texts", len(out.Labels), len(texts))
	}
	return out.Labels, nil
}
