package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

var errSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient resolves JSON schema ids for progression event subjects.
type SchemaRegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewSchemaRegistryClient returns a client whose requests time out after 10s.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the latest schema id registered under subject. An
// unknown subject gets schema registered as its first version.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.call(ctx, http.MethodGet, subject, "/versions/latest", nil)
	if !errors.Is(err, errSubjectNotFound) {
		return id, err
	}

	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	return c.call(ctx, http.MethodPost, subject, "/versions", body)
}

func (c *SchemaRegistryClient) call(ctx context.Context, method, subject, suffix string, body []byte) (int, error) {
	endpoint := c.baseURL + "/subjects/" + url.PathEscape(subject) + suffix
	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", schemaRegistryContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errSubjectNotFound
	case resp.StatusCode >= http.StatusMultipleChoices:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, fmt.Errorf("schema registry %s %s: status %d: %s", method, subject, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var registered struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return registered.ID, nil
}
