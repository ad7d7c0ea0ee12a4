package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const pageKeyPrefix = "page_"

// Page is one decoded API response of a paginated listing.
// Body keeps the verbatim response so the raw snapshot can be written back
// unchanged.
type Page struct {
	Index        int
	TotalPages   int
	TotalResults int
	Results      []json.RawMessage
	Body         json.RawMessage
}

type pageEnvelope struct {
	Page         int               `json:"page"`
	Results      []json.RawMessage `json:"results"`
	TotalPages   int               `json:"total_pages"`
	TotalResults int               `json:"total_results"`
}

// DecodePage parses a listing response body.
func DecodePage(body []byte) (*Page, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	raw := make(json.RawMessage, len(body))
	copy(raw, body)
	return &Page{
		Index:        env.Page,
		TotalPages:   env.TotalPages,
		TotalResults: env.TotalResults,
		Results:      env.Results,
		Body:         raw,
	}, nil
}

// PageKey is the snapshot key of a page index.
func PageKey(index int) string {
	return pageKeyPrefix + strconv.Itoa(index)
}

// ParsePageKey is the inverse of PageKey.
func ParsePageKey(key string) (int, error) {
	if !strings.HasPrefix(key, pageKeyPrefix) {
		return 0, fmt.Errorf("invalid page key %q", key)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, pageKeyPrefix))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page key %q", key)
	}
	return n, nil
}

// Snapshot is the set of pages fetched for one endpoint in one run, keyed by
// page index. Pages are only ever added; iteration is by ascending index.
type Snapshot struct {
	Endpoint Endpoint
	// TotalPages is what the source reported on page 1.
	TotalPages int
	// Requested is the number of page indexes the collector attempted.
	Requested int

	pages map[int]*Page
}

// NewSnapshot creates an empty snapshot for the endpoint.
func NewSnapshot(e Endpoint) *Snapshot {
	return &Snapshot{Endpoint: e, pages: make(map[int]*Page)}
}

// Add stores a page under index. A page already stored under the same index
// is kept.
func (s *Snapshot) Add(index int, p *Page) bool {
	if _, exists := s.pages[index]; exists {
		return false
	}
	s.pages[index] = p
	return true
}

// Len returns the number of stored pages.
func (s *Snapshot) Len() int { return len(s.pages) }

// Page returns the page stored under index.
func (s *Snapshot) Page(index int) (*Page, bool) {
	p, ok := s.pages[index]
	return p, ok
}

// Indexes returns the stored page indexes in ascending order.
func (s *Snapshot) Indexes() []int {
	idx := make([]int, 0, len(s.pages))
	for i := range s.pages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Pages returns the stored pages in ascending index order.
func (s *Snapshot) Pages() []*Page {
	idx := s.Indexes()
	out := make([]*Page, len(idx))
	for i, n := range idx {
		out[i] = s.pages[n]
	}
	return out
}

// MarshalJSON writes {"page_1": <body>, "page_2": <body>, ...} in ascending
// index order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range s.Indexes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(PageKey(n))
		buf.Write(key)
		buf.WriteByte(':')
		body := s.pages[n].Body
		if len(body) == 0 {
			body = json.RawMessage("{}")
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the format written by MarshalJSON. Endpoint is left
// untouched.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s.pages = make(map[int]*Page, len(raw))
	for key, body := range raw {
		n, err := ParsePageKey(key)
		if err != nil {
			return err
		}
		p, err := DecodePage(body)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if p.Index == 0 {
			p.Index = n
		}
		s.pages[n] = p
		if p.TotalPages > s.TotalPages {
			s.TotalPages = p.TotalPages
		}
	}
	return nil
}
