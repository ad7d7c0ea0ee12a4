package models

import "fmt"

// Endpoint identifies one of the TMDb movie listing sources.
type Endpoint string

const (
	Popular  Endpoint = "popular"
	TopRated Endpoint = "top_rated"
	Upcoming Endpoint = "upcoming"
)

// GenresTable is the table name of the genre reference.
const GenresTable = "genres"

// Endpoints returns every listing source in pipeline order.
func Endpoints() []Endpoint {
	return []Endpoint{Popular, TopRated, Upcoming}
}

// ParseEndpoint validates a listing source name.
func ParseEndpoint(s string) (Endpoint, error) {
	for _, e := range Endpoints() {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown endpoint %q", s)
}

// Path is the API path below /3, e.g. /movie/popular.
func (e Endpoint) Path() string { return "/movie/" + string(e) }

// TableName is the name of the finalized table for this endpoint.
func (e Endpoint) TableName() string { return string(e) }
