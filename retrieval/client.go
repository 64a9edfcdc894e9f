package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/internal/httpclient"
	"github.com/wahl-chat/wahl-chat-backend/obs"
)

// Client queries a vector search service over HTTP. Each party's documents
// live in their own namespace; the neutral assistant uses the shared
// election-information namespace.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type ClientOption func(*Client)

func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient constructs a search client for the given service URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.Retrieval()
	}
	return c
}

type searchRequest struct {
	Query     string  `json:"query"`
	Namespace string  `json:"namespace"`
	TopK      int     `json:"top_k"`
	MinScore  float64 `json:"min_score,omitempty"`
}

type searchMatch struct {
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Metadata struct {
		Source         string `json:"source"`
		Page           int    `json:"page"`
		PublishDate    string `json:"document_publish_date"`
		URL            string `json:"url"`
		SourceDocument string `json:"source_document"`
		PartyID        string `json:"party_id"`
	} `json:"metadata"`
}

type searchResponse struct {
	Matches []searchMatch `json:"matches"`
}

func (c *Client) Search(ctx context.Context, query, namespace string, topK int, minScore float64) (_ []core.EvidenceItem, err error) {
	ctx, recorder := obs.StartRequest(ctx, "retrieval.Search",
		attribute.String("retrieval.namespace", namespace),
		attribute.Int("retrieval.top_k", topK),
	)
	defer func() { recorder.End(err) }()

	payload := searchRequest{Query: query, Namespace: namespace, TopK: topK, MinScore: minScore}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.WrapError(err, core.ErrRetrieval)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewError(core.ErrRetrieval, fmt.Sprintf("search failed: %s: %s", resp.Status, data))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, core.WrapError(fmt.Errorf("decode search response: %w", err), core.ErrRetrieval)
	}

	items := make([]core.EvidenceItem, 0, len(decoded.Matches))
	for _, match := range decoded.Matches {
		items = append(items, core.EvidenceItem{
			DocumentName:   match.Metadata.Source,
			Page:           match.Metadata.Page + 1, // stored zero-based, shown one-based
			PublishDate:    match.Metadata.PublishDate,
			URL:            match.Metadata.URL,
			SourceDocument: match.Metadata.SourceDocument,
			PartyID:        match.Metadata.PartyID,
			Content:        match.Content,
			Score:          match.Score,
		})
	}
	return items, nil
}
