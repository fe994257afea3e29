// Package drive implements component 4.M: a thin wrapper over Google
// Drive v3's files endpoints, used only to resolve a notebook path for
// `colab run --notebook <path>` before the Runtime Session Core takes
// over. It is never invoked from the core itself.
package drive

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/httpclient"
)

const apiBase = "https://www.googleapis.com/drive/v3"
const uploadBase = "https://www.googleapis.com/upload/drive/v3"

// File is the subset of a Drive file resource this client cares about.
type File struct {
	ID       string
	Name     string
	MimeType string
}

// Client wraps Drive v3's files.list/get/create/update for notebook JSON
// blobs, built on the same transport type (timeout/impersonation) as the
// Colab API client. Drive requests are not retried.
type Client struct {
	transport *httpclient.Transport
}

// New builds a Client over the same AccessTokenSource used for Colab.
func New(cfg *config.Config, tokens httpclient.AccessTokenSource) (*Client, error) {
	t, err := httpclient.New(cfg, "drive", tokens)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to build transport: %w", err)
	}
	return &Client{transport: t}, nil
}

// FindByName searches for a file named name, returning the first match.
func (c *Client) FindByName(ctx context.Context, name string) (File, bool, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQueryLiteral(name))
	data, err := c.transport.Do(ctx, httpclient.Options{
		Method: "GET",
		URL:    apiBase + "/files?q=" + url.QueryEscape(q) + "&fields=files(id,name,mimeType)",
	})
	if err != nil {
		return File{}, false, err
	}
	files := gjson.GetBytes(data, "files").Array()
	if len(files) == 0 {
		return File{}, false, nil
	}
	f := files[0]
	return File{ID: f.Get("id").String(), Name: f.Get("name").String(), MimeType: f.Get("mimeType").String()}, true, nil
}

// Get fetches a file's raw content.
func (c *Client) Get(ctx context.Context, fileID string) ([]byte, error) {
	return c.transport.Do(ctx, httpclient.Options{
		Method: "GET",
		URL:    apiBase + "/files/" + fileID + "?alt=media",
	})
}

// Create uploads content as a new notebook named name, returning the new
// file's ID.
func (c *Client) Create(ctx context.Context, name string, content []byte) (string, error) {
	metadata, _ := sjson.SetBytes(nil, "name", name)
	metadata, _ = sjson.SetBytes(metadata, "mimeType", "application/vnd.google.colab")

	data, err := c.transport.Do(ctx, httpclient.Options{
		Method:  "POST",
		URL:     uploadBase + "/files?uploadType=multipart",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    metadata,
	})
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return "", fmt.Errorf("drive: create response missing id")
	}
	return id, c.update(ctx, id, content)
}

// Update overwrites an existing notebook's content.
func (c *Client) Update(ctx context.Context, fileID string, content []byte) error {
	return c.update(ctx, fileID, content)
}

func (c *Client) update(ctx context.Context, fileID string, content []byte) error {
	_, err := c.transport.Do(ctx, httpclient.Options{
		Method: "PATCH",
		URL:    uploadBase + "/files/" + fileID + "?uploadType=media",
		Body:   content,
	})
	return err
}

func escapeQueryLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, string(r)...)
	}
	return string(out)
}
