// Package rag provides the optional retrieval backend client. Records live
// in a Supabase project and are fetched over its REST interface; search is a
// plain substring filter over the fetched rows.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the Supabase REST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new retrieval client. A client with an empty baseURL
// is valid but disabled.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a retrieval backend is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Chunk is one retrievable text snippet.
type Chunk struct {
	ID         int    `json:"id,omitempty"`
	DocumentID int    `json:"document_id,omitempty"`
	Content    string `json:"content"`
}

// Document is a full source document.
type Document struct {
	ID       int    `json:"id,omitempty"`
	Title    string `json:"title"`
	FullText string `json:"full_text,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Documents returns all documents.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.get(ctx, "/rest/v1/documents?select=*", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Chunks returns all document chunks.
func (c *Client) Chunks(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	if err := c.get(ctx, "/rest/v1/document_chunks?select=*", &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// SearchChunks returns up to limit snippets matching the query. Chunks are
// filtered first; when none match, document titles and bodies are searched
// and rewrapped as snippets. An empty result is not an error.
func (c *Client) SearchChunks(ctx context.Context, query string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 5
	}
	queryLower := strings.ToLower(query)

	chunks, err := c.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Chunk, 0, limit)
	for _, chunk := range chunks {
		if strings.Contains(strings.ToLower(chunk.Content), queryLower) {
			results = append(results, chunk)
			if len(results) == limit {
				return results, nil
			}
		}
	}
	if len(results) > 0 {
		return results, nil
	}

	docs, err := c.Documents(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		body := doc.FullText
		if body == "" {
			body = doc.Content
		}
		if strings.Contains(strings.ToLower(doc.Title), queryLower) ||
			strings.Contains(strings.ToLower(body), queryLower) {
			results = append(results, Chunk{
				Content: fmt.Sprintf("Document: %s\nContent: %s", doc.Title, body),
			})
			if len(results) == limit {
				break
			}
		}
	}
	return results, nil
}

// get performs an authenticated GET against the REST interface.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
