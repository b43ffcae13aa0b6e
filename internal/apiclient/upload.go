package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// File is one uploaded file.
type File struct {
	Name    string
	Content io.Reader
}

// Upload posts file as the multipart field "file" together with the extra
// form fields. The body is buffered so the request can be replayed after a
// token refresh.
func (a *API) Upload(ctx context.Context, path string, file File, fields map[string]string) (*Envelope, error) {
	req, err := NewUploadRequest(path, file, fields)
	if err != nil {
		return nil, err
	}
	return a.client.Call(ctx, req)
}

// NewUploadRequest encodes a multipart/form-data POST request.
func NewUploadRequest(path string, file File, fields map[string]string) (*Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, fmt.Errorf("copy upload content: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}, nil
}
