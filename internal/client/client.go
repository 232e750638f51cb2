// Package client talks to the explainer HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slidedeck/explainer/internal/job"
)

var (
	ErrNotFound = errors.New("UID not found")
	ErrTimeout  = errors.New("file was not processed in time")
)

type Status struct {
	Status      string
	Filename    string
	Timestamp   time.Time
	Explanation json.RawMessage
}

func (s *Status) IsDone() bool {
	return s.Status == "done"
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadFile submits the deck at path and returns its UID.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		UID string `json:"uid"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return out.UID, nil
}

func (c *Client) Status(ctx context.Context, uid string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(uid), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status      string          `json:"status"`
		Filename    string          `json:"filename"`
		Timestamp   string          `json:"timestamp"`
		Explanation json.RawMessage `json:"explanation"`
	}
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}

	ts, err := time.Parse(job.TimestampFormat, raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", raw.Timestamp, err)
	}
	st := &Status{Status: raw.Status, Filename: raw.Filename, Timestamp: ts}
	if string(raw.Explanation) != "null" {
		st.Explanation = raw.Explanation
	}
	return st, nil
}

// Wait polls Status every interval until the job is done, giving up after
// attempts polls.
func (c *Client) Wait(ctx context.Context, uid string, interval time.Duration, attempts int, onPoll func(*Status)) (*Status, error) {
	for i := 0; i < attempts; i++ {
		st, err := c.Status(ctx, uid)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(st)
		}
		if st.IsDone() {
			return st, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, ErrTimeout
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
