package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"redleaf/api/internal/citation"
)

const testToken = "test-csrf-token"

// capture records the last request the test server saw.
type capture struct {
	method string
	path   string
	csrf   string
	body   []byte
}

func newTestClient(t *testing.T, status int, response string, captured *capture) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			captured.method = r.Method
			captured.path = r.URL.Path
			captured.csrf = r.Header.Get("X-CSRFToken")
			captured.body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return New(server.URL, testToken)
}

func TestMutatingRequestsCarryCSRFToken(t *testing.T) {
	var seen capture
	c := newTestClient(t, http.StatusOK, `{"success":true}`, &seen)

	if err := c.UnlinkMedia(context.Background(), "doc-1"); err != nil {
		t.Fatalf("UnlinkMedia() error = %v", err)
	}
	if seen.csrf != testToken {
		t.Fatalf("CSRF header = %q, want %q", seen.csrf, testToken)
	}
	if seen.path != "/api/document/doc-1/unlink_media" {
		t.Fatalf("path = %q", seen.path)
	}
}

func TestGetRequestsOmitCSRFToken(t *testing.T) {
	var seen capture
	c := newTestClient(t, http.StatusOK, `{"linked":false,"offset":0}`, &seen)

	if _, err := c.GetMediaStatus(context.Background(), "doc-1"); err != nil {
		t.Fatalf("GetMediaStatus() error = %v", err)
	}
	if seen.csrf != "" {
		t.Fatalf("GET carried CSRF header %q", seen.csrf)
	}
}

func TestErrorStatusSurfacesBodyMessage(t *testing.T) {
	c := newTestClient(t, http.StatusNotFound, `{"success":false,"message":"No 'talk.mp3' file found anywhere."}`, nil)

	err := c.FindMedia(context.Background(), "doc-1", "audio")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T %v", err, err)
	}
	if netErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d", netErr.StatusCode)
	}
	if netErr.Message != "No 'talk.mp3' file found anywhere." {
		t.Fatalf("Message = %q", netErr.Message)
	}
}

func TestErrorStatusFallsBackToErrorField(t *testing.T) {
	c := newTestClient(t, http.StatusForbidden, `{"error":"invalid CSRF token"}`, nil)

	err := c.UnlinkMedia(context.Background(), "doc-1")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T %v", err, err)
	}
	if netErr.Message != "invalid CSRF token" {
		t.Fatalf("Message = %q", netErr.Message)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:0", testToken)

	_, err := c.GetMediaStatus(context.Background(), "doc-1")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T %v", err, err)
	}
	if netErr.StatusCode != 0 || netErr.Err == nil {
		t.Fatalf("netErr = %+v", netErr)
	}
}

func TestCreateCitationRejectionOn200(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"success":false,"message":"Source document not found."}`, nil)

	_, err := c.CreateCitation(context.Background(), "rpt-1", CitationInput{SourceDocID: "doc-x"})
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("err = %T %v", err, err)
	}
	if rejection.Message != "Source document not found." {
		t.Fatalf("Message = %q", rejection.Message)
	}
	if !IsRejection(err) {
		t.Fatal("IsRejection() = false")
	}
}

func TestCreateCitationSuccess(t *testing.T) {
	var seen capture
	response := `{"success":true,"citation_instance_uuid":"u1","data_doc_id":"doc-1","data_doc_type":"SRT","in_text_label":"(Okafor, 2021)"}`
	c := newTestClient(t, http.StatusOK, response, &seen)

	corrected := "the quote"
	result, err := c.CreateCitation(context.Background(), "rpt-1", CitationInput{
		SourceDocID:   "doc-1",
		PageNumber:    "00:01:02",
		CorrectedText: &corrected,
	})
	if err != nil {
		t.Fatalf("CreateCitation() error = %v", err)
	}
	if result.UUID != "u1" || result.DataDocType != "SRT" || result.InTextLabel != "(Okafor, 2021)" {
		t.Fatalf("result = %+v", result)
	}

	var sent CitationInput
	if err := json.Unmarshal(seen.body, &sent); err != nil {
		t.Fatalf("request body unparseable: %v", err)
	}
	if sent.SourceDocID != "doc-1" || sent.PageNumber != "00:01:02" || sent.CorrectedText == nil || *sent.CorrectedText != corrected {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestDocumentTypesSkipsUnknownTypes(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"doc-1":"SRT","doc-2":"EPUB","doc-3":"pdf"}`, nil)

	types, err := c.DocumentTypes(context.Background(), []string{"doc-1", "doc-2", "doc-3"})
	if err != nil {
		t.Fatalf("DocumentTypes() error = %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("types = %v", types)
	}
	if types["doc-1"] != citation.SourceSRT || types["doc-3"] != citation.SourcePDF {
		t.Fatalf("types = %v", types)
	}
	if _, ok := types["doc-2"]; ok {
		t.Fatal("unknown type EPUB should be skipped")
	}
}

func TestDocumentTypesEmptyBatchSkipsRequest(t *testing.T) {
	c := New("http://127.0.0.1:0", testToken)

	types, err := c.DocumentTypes(context.Background(), nil)
	if err != nil {
		t.Fatalf("DocumentTypes() error = %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("types = %v", types)
	}
}

func TestReportContentNeverSaved(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"success":true,"content":null}`, nil)

	content, err := c.ReportContent(context.Background(), "rpt-1")
	if err != nil {
		t.Fatalf("ReportContent() error = %v", err)
	}
	if len(content) != 0 && string(content) != "null" {
		t.Fatalf("content = %q", content)
	}
}

func TestSaveOffsetSendsOffsetField(t *testing.T) {
	var seen capture
	c := newTestClient(t, http.StatusOK, `{"success":true}`, &seen)

	if err := c.SaveOffset(context.Background(), "doc-1", -20.5); err != nil {
		t.Fatalf("SaveOffset() error = %v", err)
	}
	var sent map[string]float64
	if err := json.Unmarshal(seen.body, &sent); err != nil {
		t.Fatalf("request body unparseable: %v", err)
	}
	if sent["offset"] != -20.5 {
		t.Fatalf("offset = %v", sent["offset"])
	}
}

func TestCheckURLStatus(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"status":"warning","message":"URL is reachable, but does not appear to be a direct audio link."}`, nil)

	status, err := c.CheckURLStatus(context.Background(), "doc-1", "https://example.com/page")
	if err != nil {
		t.Fatalf("CheckURLStatus() error = %v", err)
	}
	if status.Status != "warning" {
		t.Fatalf("status = %+v", status)
	}
}

func TestBibliography(t *testing.T) {
	var seen capture
	response := `{"entries":[{"doc_id":"doc-1","relative_path":"notes/a.pdf","label":"Hale. (2020). First","cite_count":2}]}`
	c := newTestClient(t, http.StatusOK, response, &seen)

	entries, err := c.Bibliography(context.Background(), "rpt-1", json.RawMessage(`{"type":"doc"}`))
	if err != nil {
		t.Fatalf("Bibliography() error = %v", err)
	}
	if len(entries) != 1 || entries[0].CiteCount != 2 || entries[0].DocID != "doc-1" {
		t.Fatalf("entries = %+v", entries)
	}
	if seen.path != "/api/synthesis/rpt-1/bibliography" {
		t.Fatalf("path = %q", seen.path)
	}
}
