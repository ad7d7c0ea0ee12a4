package tmdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tmdb-etl/models"
)

const (
	defaultBaseURL = "https://api.themoviedb.org"
	listLanguage   = "en-US"
	genreLanguage  = "en"
)

// Options configures a Fetcher. They are fixed at construction time.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ResultKind classifies the outcome of one request.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultHTTPError
	ResultNetworkError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultHTTPError:
		return "http"
	default:
		return "network"
	}
}

// PageResult is the typed outcome of one GET. Err is a *models.HTTPError or
// a *models.NetworkError when the request did not succeed.
type PageResult struct {
	URL     string
	Status  int
	Body    []byte
	Elapsed time.Duration
	Err     error
}

// Kind reports which outcome this is.
func (r PageResult) Kind() ResultKind {
	switch r.Err.(type) {
	case nil:
		return ResultOK
	case *models.HTTPError:
		return ResultHTTPError
	default:
		return ResultNetworkError
	}
}

// Page decodes an OK body. A body that is not a listing page is reported as
// a network error: the payload did not arrive intact.
func (r PageResult) Page() (*models.Page, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	p, err := models.DecodePage(r.Body)
	if err != nil {
		return nil, &models.NetworkError{URL: r.URL, Err: err}
	}
	return p, nil
}

// Fetcher performs single authenticated GET requests against the TMDb API.
// It never retries; callers own that policy.
type Fetcher struct {
	client  *http.Client
	baseURL string
	header  http.Header
}

// NewFetcher creates a Fetcher. The API key is sent as a bearer token.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	header := make(http.Header)
	header.Set("accept", "application/json")
	header.Set("Authorization", "Bearer "+opts.APIKey)

	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		header:  header,
	}
}

// ListURL builds the URL of one page of an endpoint's listing.
func (f *Fetcher) ListURL(e models.Endpoint, page int) string {
	q := url.Values{}
	q.Set("language", listLanguage)
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/3%s?%s", f.baseURL, e.Path(), q.Encode())
}

// GenresURL is the URL of the static movie genre list.
func (f *Fetcher) GenresURL() string {
	return fmt.Sprintf("%s/3/genre/movie/list?language=%s", f.baseURL, genreLanguage)
}

// Fetch performs one GET. Every outcome, including transport failures and
// non-2xx statuses, is returned as a PageResult.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) PageResult {
	res := PageResult{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Err = &models.NetworkError{URL: rawURL, Err: err}
		return res
	}
	req.Header = f.header.Clone()

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		res.Elapsed = time.Since(start)
		res.Err = &models.NetworkError{URL: rawURL, Err: err}
		return res
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	res.Elapsed = time.Since(start)
	res.Status = resp.StatusCode
	if err != nil {
		res.Err = &models.NetworkError{URL: rawURL, Err: err}
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = &models.HTTPError{URL: rawURL, Status: resp.StatusCode}
		return res
	}
	res.Body = body
	return res
}
