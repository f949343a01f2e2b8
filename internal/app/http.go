package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const csrfHeader = "X-CSRFToken"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	csrfToken  string
}

func NewHTTPServer(service *Service, corsOrigin, csrfToken string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, csrfToken: csrfToken}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// The viewer channel is a websocket upgrade; it bypasses the JSON
	// surface entirely.
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/frame/") {
		docID := strings.TrimPrefix(r.URL.Path, "/api/frame/")
		if docID == "" || strings.Contains(docID, "/") {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		hub := s.service.Hub()
		if hub == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Viewer channel not enabled", nil)
			return
		}
		hub.Serve(w, r, docID)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if !s.validCSRF(r) {
			writeError(w, http.StatusForbidden, "CSRF_FAILED", "Missing or invalid CSRF token", nil)
			return
		}
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/documents/types" {
		var body struct {
			DocIDs []string `json:"doc_ids"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		types, err := s.service.DocumentTypes(r.Context(), body.DocIDs)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, types)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/documents" {
		items, err := s.service.ListDocuments(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list documents", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/synthesis/search/documents" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeJSON(w, http.StatusOK, map[string]any{"results": []any{}, "total": 0, "query": ""})
			return
		}
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.SearchDocuments(q, limit, offset))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/synthesis/reports" {
		items, err := s.service.ListReports(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list reports", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": items})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/synthesis/reports" {
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		report, err := s.service.CreateReport(r.Context(), body.Title)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "report": report})
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/synthesis/reports/{reportID}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "synthesis" && parts[2] == "reports" {
		reportID := parts[3]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.RenameReport(r.Context(), reportID, body.Title); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Report renamed."})
			return
		case http.MethodDelete:
			if err := s.service.DeleteReport(r.Context(), reportID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Report deleted."})
			return
		}
	}

	// /api/synthesis/{reportID}/...
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "synthesis" && parts[2] != "reports" && parts[2] != "search" {
		reportID := parts[2]

		if len(parts) == 4 && parts[3] == "content" {
			switch r.Method {
			case http.MethodGet:
				content, err := s.service.ReportContent(r.Context(), reportID)
				if err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				payload := map[string]any{"success": true}
				if len(content) > 0 {
					payload["content"] = content
				} else {
					payload["content"] = nil
				}
				writeJSON(w, http.StatusOK, payload)
				return
			case http.MethodPost:
				content, err := rawBody(r)
				if err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				if err := s.service.SaveReportContent(r.Context(), reportID, content); err != nil {
					status, code, message, details := mapError(err)
					writeError(w, status, code, message, details)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Content saved."})
				return
			}
		}

		if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
			limit := 20
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil {
					writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
					return
				}
				limit = parsed
			}
			history, err := s.service.ReportHistory(r.Context(), reportID, limit)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"history": history})
			return
		}

		if len(parts) == 5 && parts[3] == "content" && r.Method == http.MethodGet {
			content, err := s.service.ReportContentAt(r.Context(), reportID, parts[4])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
			return
		}

		if len(parts) == 4 && parts[3] == "citations" && r.Method == http.MethodPost {
			var input CreateCitationInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.CreateCitation(r.Context(), reportID, input)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, result)
			return
		}

		if len(parts) == 4 && parts[3] == "bibliography" && r.Method == http.MethodPost {
			content, err := rawBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			entries, err := s.service.Bibliography(r.Context(), content)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
			return
		}
	}

	// /api/document/{docID}/...
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "document" {
		docID := parts[2]
		switch {
		case parts[3] == "media_status" && r.Method == http.MethodGet:
			status, err := s.service.MediaStatus(r.Context(), docID)
			if err != nil {
				httpStatus, code, message, details := mapError(err)
				writeError(w, httpStatus, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, status)
			return

		case parts[3] == "find_audio" && r.Method == http.MethodPost:
			s.writeScanResult(w, r, docID, "audio")
			return

		case parts[3] == "find_video" && r.Method == http.MethodPost:
			s.writeScanResult(w, r, docID, "video")
			return

		case parts[3] == "link_audio_from_url" && r.Method == http.MethodPost:
			var body struct {
				URL string `json:"url"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.LinkFromURL(r.Context(), docID, body.URL)
			if err != nil {
				s.writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return

		case parts[3] == "unlink_media" && r.Method == http.MethodPost:
			if err := s.service.UnlinkMedia(r.Context(), docID); err != nil {
				s.writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Media link removed."})
			return

		case parts[3] == "save_audio_offset" && r.Method == http.MethodPost:
			var body struct {
				Offset *float64 `json:"offset"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.Offset == nil {
				s.writeFailure(w, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Offset not provided.", nil))
				return
			}
			if err := s.service.SaveAudioOffset(r.Context(), docID, *body.Offset); err != nil {
				s.writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return

		case parts[3] == "save_audio_position" && r.Method == http.MethodPost:
			var body struct {
				Position *float64 `json:"position"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.Position == nil {
				s.writeFailure(w, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Position not provided.", nil))
				return
			}
			if err := s.service.SaveAudioPosition(r.Context(), docID, *body.Position); err != nil {
				s.writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return

		case parts[3] == "check_url_status" && r.Method == http.MethodPost:
			var body struct {
				URL string `json:"url"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if strings.TrimSpace(body.URL) == "" {
				s.writeFailure(w, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "URL not provided.", nil))
				return
			}
			writeJSON(w, http.StatusOK, s.service.CheckURLStatus(r.Context(), body.URL))
			return

		case parts[3] == "metadata" && r.Method == http.MethodGet:
			cslJSON, err := s.service.Metadata(r.Context(), docID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			payload := map[string]any{"csl_json": nil}
			if cslJSON != "" {
				payload["csl_json"] = cslJSON
			}
			writeJSON(w, http.StatusOK, payload)
			return

		case parts[3] == "metadata" && r.Method == http.MethodPost:
			var body struct {
				CSLJSON string `json:"csl_json"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SaveMetadata(r.Context(), docID, body.CSLJSON); err != nil {
				s.writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Metadata saved."})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// writeScanResult runs a local media scan and renders the outcome in the
// success/message envelope the workbench expects, including the 404 for a
// scan that finds nothing.
func (s *HTTPServer) writeScanResult(w http.ResponseWriter, r *http.Request, docID, mediaType string) {
	result, err := s.service.FindLocalMedia(r.Context(), docID, mediaType)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeFailure renders an error in the body shape the workbench client
// parses: success false plus a human message, at the mapped status.
func (s *HTTPServer) writeFailure(w http.ResponseWriter, err error) {
	status, _, message, _ := mapError(err)
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func (s *HTTPServer) validCSRF(r *http.Request) bool {
	if s.csrfToken == "" {
		return true
	}
	token := strings.TrimSpace(r.Header.Get(csrfHeader))
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.csrfToken)) == 1
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the viewer channel upgrade to a websocket through the
// logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+csrfHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func rawBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
