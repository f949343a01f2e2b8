package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"redleaf/api/internal/store"
)

const testCSRFToken = "test-csrf-token"

func newTestServer(fs *fakeStore) *HTTPServer {
	return NewHTTPServer(newTestService(fs), "*", testCSRFToken)
}

func doRequest(t *testing.T, server *HTTPServer, method, path, body string, withCSRF bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if withCSRF {
		req.Header.Set(csrfHeader, testCSRFToken)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore())
	rr := doRequest(t, server, http.MethodGet, "/api/health", "", false)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	fs := newFakeStore()
	fs.pingErr = errDatabaseDown
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", false)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status := response["status"]; status != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", status)
	}
}

var errDatabaseDown = &DomainError{Status: 500, Code: "DB", Message: "down"}

func TestMutatingRequestsRequireCSRFToken(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = srtDocument("doc-1", "shows/ep1.srt")
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/documents/types", `{"doc_ids":["doc-1"]}`, false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 without token, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/documents/types", `{"doc_ids":["doc-1"]}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with token, got %d", rr.Code)
	}
}

func TestCSRFNotRequiredForReads(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = srtDocument("doc-1", "shows/ep1.srt")
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodGet, "/api/document/doc-1/media_status", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestDocumentTypesEndpoint(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = store.Document{ID: "doc-1", FileType: "PDF"}
	fs.documents["doc-2"] = store.Document{ID: "doc-2", FileType: "SRT"}
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/documents/types", `{"doc_ids":["doc-1","doc-2","doc-nope"]}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var types map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &types); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(types) != 2 || types["doc-1"] != "PDF" || types["doc-2"] != "SRT" {
		t.Fatalf("types = %v", types)
	}
}

func TestCitationEndpointShape(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = store.Document{ID: "doc-1", RelativePath: "a.srt", FileType: "SRT"}
	fs.reports["rpt-1"] = store.Report{ID: "rpt-1"}
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/synthesis/rpt-1/citations",
		`{"source_doc_id":"doc-1","page_number":"00:01:02"}`, true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["success"] != true {
		t.Fatalf("expected success=true: %v", response)
	}
	for _, key := range []string{"citation_instance_uuid", "in_text_label", "data_doc_id", "data_doc_type"} {
		if value, ok := response[key].(string); !ok || value == "" {
			t.Errorf("expected non-empty %s, got %v", key, response[key])
		}
	}
	if response["data_doc_type"] != "SRT" {
		t.Errorf("data_doc_type = %v", response["data_doc_type"])
	}
}

func TestCitationEndpointMissingFields(t *testing.T) {
	fs := newFakeStore()
	fs.reports["rpt-1"] = store.Report{ID: "rpt-1"}
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/synthesis/rpt-1/citations", `{"source_doc_id":"doc-1"}`, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestReportContentRoundTrip(t *testing.T) {
	fs := newFakeStore()
	fs.reports["rpt-1"] = store.Report{ID: "rpt-1"}
	server := newTestServer(fs)

	content := `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`
	rr := doRequest(t, server, http.MethodPost, "/api/synthesis/rpt-1/content", content, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/synthesis/rpt-1/content", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("load: expected status 200, got %d", rr.Code)
	}
	var response struct {
		Success bool            `json:"success"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.Success {
		t.Fatal("expected success")
	}
	if !strings.Contains(string(response.Content), "hello") {
		t.Fatalf("content = %s", response.Content)
	}
}

func TestReportContentNeverSavedIsNull(t *testing.T) {
	fs := newFakeStore()
	fs.reports["rpt-1"] = store.Report{ID: "rpt-1"}
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodGet, "/api/synthesis/rpt-1/content", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if content, exists := response["content"]; !exists || content != nil {
		t.Fatalf("expected content=null, got %v", content)
	}
}

func TestFindAudioEndpointNotFoundMessage(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = srtDocument("doc-1", "shows/ep1.srt")
	service := NewService(ServiceOptions{
		Store:       fs,
		DocumentsFS: fstest.MapFS{"shows/ep1.srt": &fstest.MapFile{}},
	})
	server := NewHTTPServer(service, "*", testCSRFToken)

	rr := doRequest(t, server, http.MethodPost, "/api/document/doc-1/find_audio", "", true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Success {
		t.Fatal("expected success=false")
	}
	if response.Message != "No 'ep1.mp3' file found anywhere." {
		t.Fatalf("message = %q", response.Message)
	}
}

func TestSaveAudioOffsetEndpoint(t *testing.T) {
	fs := newFakeStore()
	fs.documents["doc-1"] = srtDocument("doc-1", "shows/ep1.srt")
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/document/doc-1/save_audio_offset", `{"offset":-20.5}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if fs.documents["doc-1"].AudioOffsetSeconds != -20.5 {
		t.Fatalf("offset = %v", fs.documents["doc-1"].AudioOffsetSeconds)
	}

	// A missing offset must be rejected, zero must not.
	rr = doRequest(t, server, http.MethodPost, "/api/document/doc-1/save_audio_offset", `{}`, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing offset: expected status 400, got %d", rr.Code)
	}
	rr = doRequest(t, server, http.MethodPost, "/api/document/doc-1/save_audio_offset", `{"offset":0}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("zero offset: expected status 200, got %d", rr.Code)
	}
	if fs.documents["doc-1"].AudioOffsetSeconds != 0 {
		t.Fatalf("offset after clear = %v", fs.documents["doc-1"].AudioOffsetSeconds)
	}
}

func TestUnlinkMediaEndpoint(t *testing.T) {
	fs := newFakeStore()
	audioPath := "shows/ep1.mp3"
	doc := srtDocument("doc-1", "shows/ep1.srt")
	doc.LinkedAudioPath = &audioPath
	fs.documents["doc-1"] = doc
	server := newTestServer(fs)

	rr := doRequest(t, server, http.MethodPost, "/api/document/doc-1/unlink_media", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.Success || response.Message != "Media link removed." {
		t.Fatalf("response = %+v", response)
	}
	if fs.documents["doc-1"].LinkedAudioPath != nil {
		t.Fatal("audio path should be cleared")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(newFakeStore())
	rr := doRequest(t, server, http.MethodGet, "/api/nonsense", "", false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
