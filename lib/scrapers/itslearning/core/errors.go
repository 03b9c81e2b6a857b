package core

import (
	"errors"
	"fmt"
)

// LoginFailed means the portal never issued a session cookie. Fatal to
// the whole run, unlike every other scraping failure.
var LoginFailed = errors.New("failed to login: the portal did not issue a session cookie")

// StatusError reports a non-success HTTP status on a page the scraper
// expected to fetch. It aborts only the subtree or file being worked on.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// ParseError reports a page that came back 2xx but is missing an element
// or pattern the scraper relies on.
type ParseError struct {
	URL     string
	Missing string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("page %s is missing expected %s", e.URL, e.Missing)
}
