// Package vt talks to the VirusTotal v2 file report API and maps its
// reports onto encoded enrichment fields.
package vt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ResponseNotFound is the response_code returned for unknown resources
const ResponseNotFound = 0

// NotFoundMessage is the verbose_msg VirusTotal sends with ResponseNotFound
const NotFoundMessage = "The requested resource is not among the finished, queued or pending scans"

var ErrEmptyBody = errors.New("empty response body")

// Scan is one vendor's verdict
type Scan struct {
	Detected bool   `json:"detected"`
	Result   string `json:"result,omitempty"`
}

// Report is the per-resource object returned by file/report
type Report struct {
	ResponseCode int             `json:"response_code"`
	Resource     string          `json:"resource,omitempty"`
	MD5          string          `json:"md5,omitempty"`
	SHA1         string          `json:"sha1,omitempty"`
	SHA256       string          `json:"sha256,omitempty"`
	Positives    int             `json:"positives,omitempty"`
	Total        int             `json:"total,omitempty"`
	Permalink    string          `json:"permalink,omitempty"`
	VerboseMsg   string          `json:"verbose_msg,omitempty"`
	Scans        map[string]Scan `json:"scans,omitempty"`
}

// Keys returns the identifiers the report can be matched by, resource first
func (r *Report) Keys() []string {
	keys := make([]string, 0, 4)
	for _, k := range []string{r.Resource, r.MD5, r.SHA1, r.SHA256} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsNotFound returns true if the service has no report for the resource
func (r *Report) IsNotFound() bool {
	return r.ResponseCode == ResponseNotFound
}

// ParseReports decodes a file/report body. A single object is returned as a
// one-element slice.
func ParseReports(body []byte) ([]Report, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyBody
	}

	if trimmed[0] == '[' {
		var reports []Report
		if err := json.Unmarshal(trimmed, &reports); err != nil {
			return nil, fmt.Errorf("failed to parse report list: %w", err)
		}
		return reports, nil
	}

	var report Report
	if err := json.Unmarshal(trimmed, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return []Report{report}, nil
}
