// Package listing reads pages of the public repository listing API.
package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnstructured reports a listing response or item that does not carry
// repository descriptors.
var ErrUnstructured = errors.New("unstructured response")

// ErrStatus reports an HTTP error status from the listing endpoint.
var ErrStatus = errors.New("listing request failed")

// Descriptor is one repository entry of a listing page.
type Descriptor struct {
	ID          *int64  `json:"id"`
	URL         string  `json:"html_url"`
	Description *string `json:"description"`
}

// Page is the parsed result of one listing request.
type Page struct {
	StatusCode int
	Items      []Descriptor
	DumpPath   string
}

// First returns the first descriptor of the page.
func (p Page) First() (Descriptor, bool) {
	if len(p.Items) == 0 {
		return Descriptor{}, false
	}
	return p.Items[0], true
}

// UnstructuredError returns ErrUnstructured annotated with the HTTP code
// of the response it came from.
func UnstructuredError(code int) error {
	return fmt.Errorf("%w: Unstructured response received, HTTP code: %d", ErrUnstructured, code)
}

// Validate checks that d identifies a repository.
func (d Descriptor) Validate(code int) error {
	if d.ID == nil {
		return UnstructuredError(code)
	}
	return nil
}

// DescriptionText returns the description or an empty string.
func (d Descriptor) DescriptionText() string {
	if d.Description == nil {
		return ""
	}
	return *d.Description
}

func parsePage(code int, body []byte) ([]Descriptor, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if !json.Valid(trimmed) {
			return nil, errors.New("parse listing: invalid JSON object")
		}
		return nil, UnstructuredError(code)
	}
	var items []Descriptor
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return items, nil
}
