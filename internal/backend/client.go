// Package backend is the REST collaborator holding canonical samples, planned
// analyses, conflicts and action batches.
package backend

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

	"sampleflow/pkg/domain"
)

// API is the subset of the backend consumed by the workflow core.
type API interface {
	ListSamples(ctx context.Context) ([]domain.Sample, error)
	CreateSample(ctx context.Context, s domain.Sample) (domain.Sample, error)
	UpdateSample(ctx context.Context, id string, patch SamplePatch) (domain.Sample, error)
	DeleteSample(ctx context.Context, id string) error

	ListAnalyses(ctx context.Context) ([]domain.PlannedAnalysis, error)
	CreateAnalysis(ctx context.Context, a domain.PlannedAnalysis) (domain.PlannedAnalysis, error)
	UpdateAnalysis(ctx context.Context, id string, patch AnalysisPatch) (domain.PlannedAnalysis, error)

	ListBatches(ctx context.Context) ([]domain.ActionBatch, error)
	CreateBatch(ctx context.Context, b domain.ActionBatch) (domain.ActionBatch, error)

	ListConflicts(ctx context.Context) ([]domain.Conflict, error)
	CreateConflict(ctx context.Context, c domain.Conflict) (domain.Conflict, error)
	UpdateConflict(ctx context.Context, id string, patch ConflictPatch) (domain.Conflict, error)

	GetFilterMethods(ctx context.Context) ([]string, error)
	PutFilterMethods(ctx context.Context, methods []string) error

	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserRoles(ctx context.Context, id string, roles []string) (domain.User, error)
}

// SamplePatch carries the sample fields to change; nil fields are left alone.
type SamplePatch struct {
	WellID          *string              `json:"well_id,omitempty"`
	Horizon         *string              `json:"horizon,omitempty"`
	SamplingDate    *string              `json:"sampling_date,omitempty"`
	StorageLocation *string              `json:"storage_location,omitempty"`
	AssignedTo      *string              `json:"assigned_to,omitempty"`
	Status          *domain.SampleStatus `json:"status,omitempty"`
}

// FullSamplePatch patches every mutable field back to the values in s.
func FullSamplePatch(s domain.Sample) SamplePatch {
	return SamplePatch{
		WellID:          &s.WellID,
		Horizon:         &s.Horizon,
		SamplingDate:    &s.SamplingDate,
		StorageLocation: &s.StorageLocation,
		AssignedTo:      &s.AssignedTo,
		Status:          &s.Status,
	}
}

// Apply writes the patch onto s.
func (p SamplePatch) Apply(s *domain.Sample) {
	if p.WellID != nil {
		s.WellID = *p.WellID
	}
	if p.Horizon != nil {
		s.Horizon = *p.Horizon
	}
	if p.SamplingDate != nil {
		s.SamplingDate = *p.SamplingDate
	}
	if p.StorageLocation != nil {
		s.StorageLocation = *p.StorageLocation
	}
	if p.AssignedTo != nil {
		s.AssignedTo = *p.AssignedTo
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
}

// AnalysisPatch changes a planned analysis' status and/or assignees.
type AnalysisPatch struct {
	Status     *domain.AnalysisStatus `json:"status,omitempty"`
	AssignedTo *[]string              `json:"assigned_to,omitempty"`
}

// ConflictPatch resolves or reopens a conflict.
type ConflictPatch struct {
	Status         *domain.ConflictStatus `json:"status,omitempty"`
	ResolutionNote *string                `json:"resolution_note,omitempty"`
}

// HTTPError is returned for responses with a status code of 400 or above.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, strings.TrimSpace(e.Body))
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

// Client talks JSON over HTTP to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for baseURL with a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithToken sets a bearer token obtained from the auth service.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.decode(method, path, resp, result)
}

func (c *Client) decode(method, path string, resp *http.Response, result any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}
	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("backend decode %s: %w", path, err)
		}
	}
	return nil
}

func escape(id string) string { return url.PathEscape(id) }

// ListSamples implements API.
func (c *Client) ListSamples(ctx context.Context) ([]domain.Sample, error) {
	var out []domain.Sample
	if err := c.do(ctx, http.MethodGet, "/samples", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSample implements API.
func (c *Client) CreateSample(ctx context.Context, s domain.Sample) (domain.Sample, error) {
	var out domain.Sample
	if err := c.do(ctx, http.MethodPost, "/samples", s, &out); err != nil {
		return domain.Sample{}, err
	}
	if out.SampleID == "" {
		out = s
	}
	return out, nil
}

// UpdateSample implements API.
func (c *Client) UpdateSample(ctx context.Context, id string, patch SamplePatch) (domain.Sample, error) {
	var out domain.Sample
	if err := c.do(ctx, http.MethodPatch, "/samples/"+escape(id), patch, &out); err != nil {
		return domain.Sample{}, err
	}
	return out, nil
}

// DeleteSample implements API.
func (c *Client) DeleteSample(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/samples/"+escape(id), nil, nil)
}

// ListAnalyses implements API.
func (c *Client) ListAnalyses(ctx context.Context) ([]domain.PlannedAnalysis, error) {
	var wire []wireAnalysis
	if err := c.do(ctx, http.MethodGet, "/planned-analyses", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.PlannedAnalysis, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.domain())
	}
	return out, nil
}

// CreateAnalysis implements API.
func (c *Client) CreateAnalysis(ctx context.Context, a domain.PlannedAnalysis) (domain.PlannedAnalysis, error) {
	var wire wireAnalysis
	if err := c.do(ctx, http.MethodPost, "/planned-analyses", a, &wire); err != nil {
		return domain.PlannedAnalysis{}, err
	}
	return wire.domain(), nil
}

// UpdateAnalysis implements API.
func (c *Client) UpdateAnalysis(ctx context.Context, id string, patch AnalysisPatch) (domain.PlannedAnalysis, error) {
	var wire wireAnalysis
	if err := c.do(ctx, http.MethodPatch, "/planned-analyses/"+escape(id), patch, &wire); err != nil {
		return domain.PlannedAnalysis{}, err
	}
	return wire.domain(), nil
}

// ListBatches implements API.
func (c *Client) ListBatches(ctx context.Context) ([]domain.ActionBatch, error) {
	var wire []wireBatch
	if err := c.do(ctx, http.MethodGet, "/action-batches", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.ActionBatch, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.domain())
	}
	return out, nil
}

// CreateBatch implements API.
func (c *Client) CreateBatch(ctx context.Context, b domain.ActionBatch) (domain.ActionBatch, error) {
	var wire wireBatch
	if err := c.do(ctx, http.MethodPost, "/action-batches", b, &wire); err != nil {
		return domain.ActionBatch{}, err
	}
	return wire.domain(), nil
}

// ListConflicts implements API.
func (c *Client) ListConflicts(ctx context.Context) ([]domain.Conflict, error) {
	var wire []wireConflict
	if err := c.do(ctx, http.MethodGet, "/conflicts", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Conflict, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.domain())
	}
	return out, nil
}

// CreateConflict implements API.
func (c *Client) CreateConflict(ctx context.Context, cf domain.Conflict) (domain.Conflict, error) {
	var wire wireConflict
	if err := c.do(ctx, http.MethodPost, "/conflicts", cf, &wire); err != nil {
		return domain.Conflict{}, err
	}
	return wire.domain(), nil
}

// UpdateConflict implements API.
func (c *Client) UpdateConflict(ctx context.Context, id string, patch ConflictPatch) (domain.Conflict, error) {
	var wire wireConflict
	if err := c.do(ctx, http.MethodPatch, "/conflicts/"+escape(id), patch, &wire); err != nil {
		return domain.Conflict{}, err
	}
	return wire.domain(), nil
}

type filterMethods struct {
	Methods []string `json:"methods"`
}

// GetFilterMethods implements API.
func (c *Client) GetFilterMethods(ctx context.Context) ([]string, error) {
	var out filterMethods
	if err := c.do(ctx, http.MethodGet, "/filter-methods", nil, &out); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// PutFilterMethods implements API.
func (c *Client) PutFilterMethods(ctx context.Context, methods []string) error {
	return c.do(ctx, http.MethodPut, "/filter-methods", filterMethods{Methods: methods}, nil)
}

// ListUsers implements API.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var wire []wireUser
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.domain())
	}
	return out, nil
}

// UpdateUserRoles implements API.
func (c *Client) UpdateUserRoles(ctx context.Context, id string, roles []string) (domain.User, error) {
	var wire wireUser
	body := map[string]any{"id": id, "roles": roles}
	if err := c.do(ctx, http.MethodPatch, "/admin/users", body, &wire); err != nil {
		return domain.User{}, err
	}
	return wire.domain(), nil
}
