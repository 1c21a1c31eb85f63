// Package imagehost uploads result screenshots to an imgbb-compatible image
// host and returns their public URLs.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

type Client struct {
	Base string
	Key  string
	HTTP *http.Client
}

func New(base, key string) *Client {
	if base == "" {
		base = "https://api.imgbb.com/1/upload"
	}
	c := &http.Client{Timeout: 15 * time.Second}
	return &Client{Base: base, Key: key, HTTP: c}
}

type uploadResp struct {
	Success bool `json:"success"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends one image and returns its stable URL. Every failure is a
// retryable dependency error.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	u, err := url.Parse(c.Base)
	if err != nil {
		return "", fmt.Errorf("image host url: %w", err)
	}
	if c.Key != "" {
		q := u.Query()
		q.Set("key", c.Key)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.Dependency("image host", fmt.Errorf("POST %s: %w", c.Base, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", apperr.Dependency("image host", fmt.Errorf("POST %s -> %d", c.Base, resp.StatusCode))
	}

	var payload uploadResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", apperr.Dependency("image host", fmt.Errorf("decode response: %w", err))
	}
	if !payload.Success || payload.Data.URL == "" {
		msg := "upload rejected"
		if payload.Error != nil && payload.Error.Message != "" {
			msg = payload.Error.Message
		}
		return "", apperr.Dependency("image host", errors.New(msg))
	}
	return payload.Data.URL, nil
}
