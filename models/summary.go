package models

import "time"

// EndpointReport is the extraction outcome of one endpoint.
type EndpointReport struct {
	Endpoint   Endpoint
	TotalPages int
	Requested  int
	Fetched    int
	// Err is set when page-count discovery failed; no snapshot exists then.
	Err error
}

// TableReport is the load outcome of one table. A table that loaded zero
// rows has Loaded set and Rows zero; a failed table has Err set.
type TableReport struct {
	Table  string
	Rows   int
	Loaded bool
	Err    error
}

// RunSummary collects the per-endpoint and per-table outcomes of one run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Endpoints []EndpointReport
	Tables    []TableReport
}

// RecordEndpoint appends an extraction outcome.
func (s *RunSummary) RecordEndpoint(r EndpointReport) {
	s.Endpoints = append(s.Endpoints, r)
}

// RecordTable appends a load outcome.
func (s *RunSummary) RecordTable(r TableReport) {
	s.Tables = append(s.Tables, r)
}

// FailedTables returns the names of tables whose load failed.
func (s *RunSummary) FailedTables() []string {
	var out []string
	for _, t := range s.Tables {
		if t.Err != nil {
			out = append(out, t.Table)
		}
	}
	return out
}
