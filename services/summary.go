package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tmdb-etl/models"
	"tmdb-etl/utils"
)

// SummaryService logs and prints the end-of-run report.
type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

// Log writes one line per endpoint and per table at the level its outcome
// deserves.
func (s *SummaryService) Log(r *models.RunSummary) {
	for _, e := range r.Endpoints {
		if e.Err != nil {
			s.logger.Error("[summary] %s: extraction failed: %v", e.Endpoint, e.Err)
			continue
		}
		s.logger.Info("[summary] %s: fetched %d/%d pages", e.Endpoint, e.Fetched, e.Requested)
	}
	for _, t := range r.Tables {
		switch {
		case t.Err != nil:
			s.logger.Error("[summary] table %s: load failed: %v", t.Table, t.Err)
		case t.Rows == 0:
			s.logger.Warn("[summary] table %s: loaded 0 rows", t.Table)
		default:
			s.logger.Info("[summary] table %s: loaded %d rows", t.Table, t.Rows)
		}
	}
}

// Print renders the summary for a terminal.
func (s *SummaryService) Print(w io.Writer, r *models.RunSummary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  TMDB ETL RUN %s\033[0m\n", r.RunID)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	if !r.StartedAt.IsZero() {
		fmt.Fprintf(w, "  Duration : %s\n\n", time.Since(r.StartedAt).Round(time.Millisecond))
	}

	fmt.Fprintf(w, "\033[1;33m  Extraction\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Endpoints) == 0 {
		fmt.Fprintf(w, "  Not run\n")
	}
	for _, e := range r.Endpoints {
		if e.Err != nil {
			fmt.Fprintf(w, "  %-12s \033[1;31mFAILED\033[0m %s\n", e.Endpoint, truncate(e.Err.Error(), 36))
			continue
		}
		fmt.Fprintf(w, "  %-12s %4d/%-4d pages (source reports %d)\n", e.Endpoint, e.Fetched, e.Requested, e.TotalPages)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Load\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Tables) == 0 {
		fmt.Fprintf(w, "  Not run\n")
	}
	for _, t := range r.Tables {
		switch {
		case t.Err != nil:
			fmt.Fprintf(w, "  %-12s \033[1;31mFAILED\033[0m %s\n", t.Table, truncate(t.Err.Error(), 36))
		case t.Rows == 0:
			fmt.Fprintf(w, "  %-12s \033[1;33mok, 0 rows\033[0m\n", t.Table)
		default:
			fmt.Fprintf(w, "  %-12s \033[1;32mok\033[0m %d rows\n", t.Table, t.Rows)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// truncate shortens s to max runes, ending in "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
