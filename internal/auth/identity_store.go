// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// HTTPIdentityStore looks up subject records from the platform's internal
// directory service. It is the production IdentityStore; the directory
// service owns the registration data and this client stays read-only.
type HTTPIdentityStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPIdentityStore creates a directory service client. The base URL is
// the service root, e.g. "http://directory.internal:8080".
func NewHTTPIdentityStore(baseURL string, client *http.Client) *HTTPIdentityStore {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPIdentityStore{baseURL: baseURL, httpClient: client}
}

// LookupSubject implements IdentityStore. A 404 from the directory is a
// definitive not-found answer, not a transport failure.
func (s *HTTPIdentityStore) LookupSubject(ctx context.Context, subjectID string) (*SubjectRecord, error) {
	url := fmt.Sprintf("%s/internal/subjects/%s", s.baseURL, subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusNotFound:
		return nil, ErrSubjectNotFound
	default:
		return nil, fmt.Errorf("directory service returned status %d", resp.StatusCode)
	}

	var body struct {
		OwnerEntityID string `json:"owner_entity_id"`
		Role          string `json:"role"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode subject record: %w", err)
	}
	return &SubjectRecord{
		OwnerEntityID: body.OwnerEntityID,
		Role:          body.Role,
		Status:        body.Status,
	}, nil
}

// StaticIdentityStore is an in-memory IdentityStore for development and
// tests. Production deployments point at the directory service instead.
type StaticIdentityStore struct {
	mu      sync.RWMutex
	records map[string]SubjectRecord
}

// NewStaticIdentityStore creates an empty in-memory store.
func NewStaticIdentityStore() *StaticIdentityStore {
	return &StaticIdentityStore{records: make(map[string]SubjectRecord)}
}

// Put adds or replaces a subject record.
func (s *StaticIdentityStore) Put(subjectID string, record SubjectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[subjectID] = record
}

// LookupSubject implements IdentityStore.
func (s *StaticIdentityStore) LookupSubject(_ context.Context, subjectID string) (*SubjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[subjectID]
	if !ok {
		return nil, ErrSubjectNotFound
	}
	return &record, nil
}
