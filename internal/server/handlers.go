package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vtgofer/internal/batcher"
	"vtgofer/internal/codec"
	"vtgofer/internal/source"
	"vtgofer/internal/vt"
)

// reportResponse mirrors the service's file/report body. Unlike vt.Report it
// always carries positives for found reports.
type reportResponse struct {
	ResponseCode int                `json:"response_code"`
	Resource     string             `json:"resource"`
	VerboseMsg   string             `json:"verbose_msg,omitempty"`
	Positives    *int               `json:"positives,omitempty"`
	Permalink    string             `json:"permalink,omitempty"`
	Scans        map[string]vt.Scan `json:"scans,omitempty"`
}

// lookupResponse is the raw encoded result; buffer is base64 on the wire
type lookupResponse struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Buffer []byte `json:"buffer,omitempty"`
}

// handleReport answers in the service's own format, decoding the result the
// source produced for the resource
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("resource")
	if key == "" {
		s.writeErrorResponse(w, "missing resource", http.StatusBadRequest)
		return
	}

	result, ok := s.lookup(w, r, key)
	if !ok {
		return
	}

	report, err := s.layout.Expand(key, result)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to decode result")
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := reportResponse{
		ResponseCode: report.ResponseCode,
		Resource:     report.Resource,
		VerboseMsg:   report.VerboseMsg,
	}
	if !report.IsNotFound() {
		positives := report.Positives
		resp.Positives = &positives
		resp.Permalink = report.Permalink
		resp.Scans = report.Scans
	}

	s.writeResponse(w, resp)
}

// handleLookup returns the encoded result for a key
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeErrorResponse(w, "missing key", http.StatusBadRequest)
		return
	}

	result, ok := s.lookup(w, r, key)
	if !ok {
		return
	}

	resp := lookupResponse{Key: key}
	if result != nil {
		resp.Count = result.Count
		resp.Buffer = result.Buffer
	}
	s.writeResponse(w, resp)
}

// handleHealth reports queue depth and the breaker state
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	waiting, pending := s.source.Len()

	resp := map[string]interface{}{
		"status":  "healthy",
		"source":  s.source.Name(),
		"waiting": waiting,
		"pending": pending,
		"time":    time.Now().UTC(),
	}
	if b, ok := s.transport.(breakerStater); ok {
		resp["breaker"] = b.BreakerState()
	}

	s.writeResponse(w, resp)
}

// lookup blocks on the source for key. On failure it writes the error
// response and returns false.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, key string) (*codec.Result, bool) {
	contentType := r.URL.Query().Get("contentType")
	if contentType == "" {
		if types := s.cfg.VirusTotal.GetContentTypes(); len(types) > 0 {
			contentType = types[0]
		}
	}

	ctx := r.Context()
	if timeout := s.cfg.GetDebugTimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.source.Lookup(ctx, source.Query{Key: key, ContentType: contentType})
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("lookup failed")
		s.writeErrorResponse(w, err.Error(), statusFor(err))
		return nil, false
	}
	return result, true
}

// statusFor maps lookup errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, batcher.ErrDropped), errors.Is(err, batcher.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, batcher.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("failed to write error response")
	}
}
