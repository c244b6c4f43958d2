// Package remote is the stateless client for the authoritative REST API and
// the blob upload endpoint. Callers treat every failure here as transient:
// the local write proceeds and reconciliation catches the remote up later.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

// HTTPError carries a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match 404s against the shared sentinel.
func (e *HTTPError) Is(target error) bool {
	return target == apperr.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the hub's REST surface. It holds no mutable state and is
// safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway for the given base URL, e.g. "http://hub:8080".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: decode response: %w", err)
		}
	}
	return nil
}

// ListOwnDocuments fetches the documents owned by the user.
func (c *Client) ListOwnDocuments(ctx context.Context, userID string) ([]*model.Document, error) {
	var docs []*model.Document
	path := "/documents?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ShareDocument grants another user access to a document.
func (c *Client) ShareDocument(ctx context.Context, documentID uuid.UUID, userID string) error {
	body := map[string]string{"userId": userID}
	return c.doJSON(ctx, http.MethodPost, "/documents/"+documentID.String()+"/shares", body, nil)
}

// ListSharedDocuments fetches the documents shared with the user.
func (c *Client) ListSharedDocuments(ctx context.Context, userID string) ([]*model.Document, error) {
	var docs []*model.Document
	path := "/documents/shared?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument fetches one document by id.
func (c *Client) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodGet, "/documents/"+id.String(), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument mirrors a local create to the authority.
func (c *Client) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodPost, "/documents", doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDocument mirrors a local update to the authority.
func (c *Client) UpdateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodPut, "/documents/"+doc.ID.String(), doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument mirrors a local soft delete to the authority.
func (c *Client) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+id.String(), nil, nil)
}

// GetAnnotation fetches one annotation by id.
func (c *Client) GetAnnotation(ctx context.Context, id uuid.UUID) (*model.Annotation, error) {
	var ann model.Annotation
	if err := c.doJSON(ctx, http.MethodGet, "/annotations/"+id.String(), nil, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

// CreateAnnotation mirrors a local create to the authority.
func (c *Client) CreateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	var out model.Annotation
	if err := c.doJSON(ctx, http.MethodPost, "/annotations", ann, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAnnotation mirrors a local update to the authority.
func (c *Client) UpdateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	var out model.Annotation
	if err := c.doJSON(ctx, http.MethodPut, "/annotations/"+ann.ID.String(), ann, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAnnotation mirrors a local soft delete to the authority.
func (c *Client) DeleteAnnotation(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/annotations/"+id.String(), nil, nil)
}

// UploadPDF sends a document's PDF as multipart form data and returns the
// blob URL the remote side assigned.
func (c *Client) UploadPDF(ctx context.Context, documentID uuid.UUID, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("documentId", documentID.String()); err != nil {
		return "", fmt.Errorf("remote: multipart field: %w", err)
	}
	part, err := mw.CreateFormFile("file", documentID.String()+".pdf")
	if err != nil {
		return "", fmt.Errorf("remote: multipart file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("remote: copy pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("remote: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/blobs", &buf)
	if err != nil {
		return "", fmt.Errorf("remote: build upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: upload pdf: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("remote: decode upload response: %w", err)
	}
	return result.URL, nil
}
