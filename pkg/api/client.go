// Package api is the HTTP client for the triage persistence boundary.
// Photo ids are opaque strings, set values are the four literal strings of
// the workflow, and scores are nullable floats.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Photo is the wire representation of one photo.
type Photo struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"projectId"`
	Filename      string     `json:"filename"`
	StorePath     string     `json:"storePath"`
	ContentType   string     `json:"contentType"`
	SizeBytes     int64      `json:"sizeBytes"`
	CapturedAt    *time.Time `json:"capturedAt"`
	BlurScore     *float64   `json:"blurScore"`
	IsBlurry      bool       `json:"isBlurry"`
	QualityScore  *float64   `json:"qualityScore"`
	ExposureScore *float64   `json:"exposureScore"`
	HasFaces      bool       `json:"hasFaces"`
	FaceCount     int        `json:"faceCount"`
	AnalyzedAt    *time.Time `json:"analyzedAt"`
	PhotoSet      string     `json:"photoSet"`
	IsSelected    bool       `json:"isSelected"`
	Failed        bool       `json:"failed"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Project is the wire representation of one project with derived counts.
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PhotoCount    int64  `json:"photoCount"`
	SelectedCount int64  `json:"selectedCount"`
}

// ListQuery narrows a photo listing server-side.
type ListQuery struct {
	Set        string
	MinQuality *float64
	HasFaces   bool
}

// Client talks to the autocam API server.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a client with a sane default timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for an access token and a refresh token.
func (c *Client) Login(ctx context.Context, username, password string) (token, refresh string, err error) {
	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", in, &out); err != nil {
		return "", "", err
	}
	return out.Token, out.RefreshToken, nil
}

// ListPhotos fetches the full photo list of a project (the sync loop's full
// reload), optionally narrowed by q.
func (c *Client) ListPhotos(ctx context.Context, projectID string, q ListQuery) ([]Photo, error) {
	if projectID == "" {
		return nil, &ValidationError{Msg: "project id required"}
	}
	v := url.Values{}
	if q.Set != "" {
		v.Set("set", q.Set)
	}
	if q.MinQuality != nil {
		v.Set("min_quality", strconv.FormatFloat(*q.MinQuality, 'f', -1, 64))
	}
	if q.HasFaces {
		v.Set("has_faces", "true")
	}
	path := "/projects/" + url.PathEscape(projectID) + "/photos"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	var photos []Photo
	if err := c.do(ctx, http.MethodGet, path, nil, &photos); err != nil {
		return nil, err
	}
	return photos, nil
}

// ListProjects fetches the caller's projects with derived counts.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// SelectPhotos moves photos into FINAL (updatePhotoSet). Ineligible ids are
// excluded server-side; the returned count may be less than len(ids).
func (c *Client) SelectPhotos(ctx context.Context, ids []string) (int, error) {
	return c.mutateSet(ctx, "/photos/select", ids)
}

// DeselectPhotos moves photos out of FINAL (revertPhotoSet); the destination
// set is computed server-side per photo from its blur flag.
func (c *Client) DeselectPhotos(ctx context.Context, ids []string) (int, error) {
	return c.mutateSet(ctx, "/photos/deselect", ids)
}

func (c *Client) mutateSet(ctx context.Context, path string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, &ValidationError{Msg: "no photo ids given"}
	}
	var out struct {
		AffectedCount int `json:"affected_count"`
	}
	in := map[string][]string{"photo_ids": ids}
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return 0, err
	}
	return out.AffectedCount, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &ValidationError{Msg: err.Error()}
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthorizationError{Status: resp.StatusCode, Msg: errorBody(resp.Body)}
	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("server %d: %s", resp.StatusCode, errorBody(resp.Body))}
	default:
		return &ValidationError{Msg: fmt.Sprintf("%d: %s", resp.StatusCode, errorBody(resp.Body))}
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransientError{Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func errorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}
