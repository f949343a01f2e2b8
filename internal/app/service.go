package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"redleaf/api/internal/cache"
	"redleaf/api/internal/doctree"
	"redleaf/api/internal/frame"
	"redleaf/api/internal/gitrepo"
	"redleaf/api/internal/search"
	"redleaf/api/internal/store"
	"redleaf/api/internal/util"
)

type dataStore interface {
	Ping(context.Context) error
	GetDocument(context.Context, string) (store.Document, error)
	ListDocuments(context.Context) ([]store.Document, error)
	DocumentTypes(context.Context, []string) (map[string]string, error)
	LinkLocalMedia(ctx context.Context, docID string, audioPath, videoPath *string) error
	LinkWebMedia(ctx context.Context, docID, url string) error
	UnlinkMedia(ctx context.Context, docID string) error
	SaveAudioOffset(ctx context.Context, docID string, offset float64) error
	SaveAudioPosition(ctx context.Context, docID string, position float64) error
	ListReports(context.Context) ([]store.Report, error)
	GetReport(context.Context, string) (store.Report, error)
	InsertReport(context.Context, store.Report) error
	RenameReport(ctx context.Context, reportID, title string) error
	DeleteReport(ctx context.Context, reportID string) error
	SaveReportContent(ctx context.Context, reportID string, content []byte) error
	InsertCitation(context.Context, store.Citation) error
	GetMetadata(ctx context.Context, docID string) (string, error)
	SaveMetadata(ctx context.Context, docID, cslJSON string) error
}

// Service holds the application logic behind the HTTP surface. The cache,
// search service, repos and hub are all optional; a nil collaborator
// degrades that concern rather than failing requests.
type Service struct {
	store       dataStore
	cache       *cache.Redis
	search      *search.Service
	repos       *gitrepo.Service
	hub         *frame.Hub
	documentsFS fs.FS
	probe       *http.Client
	now         func() time.Time
}

type ServiceOptions struct {
	Store        dataStore
	Cache        *cache.Redis
	Search       *search.Service
	Repos        *gitrepo.Service
	Hub          *frame.Hub
	DocumentsFS  fs.FS
	ProbeTimeout time.Duration
}

func NewService(opts ServiceOptions) *Service {
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Service{
		store:       opts.Store,
		cache:       opts.Cache,
		search:      opts.Search,
		repos:       opts.Repos,
		hub:         opts.Hub,
		documentsFS: opts.DocumentsFS,
		probe:       &http.Client{Timeout: probeTimeout},
		now:         time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Hub() *frame.Hub {
	return s.hub
}

// DocumentTypes resolves document ids to file types, consulting the cache
// first and filling it with whatever the store returns.
func (s *Service) DocumentTypes(ctx context.Context, docIDs []string) (map[string]string, error) {
	if len(docIDs) == 0 {
		return map[string]string{}, nil
	}

	types, err := s.cache.DocumentTypes(ctx, docIDs)
	if err != nil {
		log.Printf("app: document type cache read: %v", err)
		types = map[string]string{}
	}

	var missing []string
	for _, id := range docIDs {
		if _, ok := types[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fromStore, err := s.store.DocumentTypes(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, t := range fromStore {
			types[id] = t
		}
		if err := s.cache.SetDocumentTypes(ctx, fromStore); err != nil {
			log.Printf("app: document type cache write: %v", err)
		}
	}
	return types, nil
}

type DocumentSummary struct {
	ID             string     `json:"id"`
	RelativePath   string     `json:"relative_path"`
	FileType       string     `json:"file_type"`
	FileModifiedAt *time.Time `json:"file_modified_at,omitempty"`
}

func (s *Service) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		items = append(items, DocumentSummary{
			ID:             doc.ID,
			RelativePath:   doc.RelativePath,
			FileType:       doc.FileType,
			FileModifiedAt: doc.FileModifiedAt,
		})
	}
	return items, nil
}

// SearchDocuments serves the synthesis search box.
func (s *Service) SearchDocuments(query string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}
	}
	return s.search.Search(search.Query{Text: query, Limit: limit, Offset: offset})
}

type ReportSummary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (s *Service) ListReports(ctx context.Context) ([]ReportSummary, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ReportSummary, 0, len(reports))
	for _, r := range reports {
		items = append(items, ReportSummary{ID: r.ID, Title: r.Title, UpdatedAt: r.UpdatedAt})
	}
	return items, nil
}

func (s *Service) CreateReport(ctx context.Context, title string) (ReportSummary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Synthesis - " + s.now().Format("2006-01-02")
	}
	report := store.Report{
		ID:        util.NewID("rpt"),
		Title:     title,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return ReportSummary{}, err
	}
	if s.repos != nil {
		if err := s.repos.EnsureReportRepo(report.ID, nil); err != nil {
			log.Printf("app: init report repo %s: %v", report.ID, err)
		}
	}
	return ReportSummary{ID: report.ID, Title: report.Title}, nil
}

func (s *Service) RenameReport(ctx context.Context, reportID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Title cannot be empty.", nil)
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return err
	}
	return s.store.RenameReport(ctx, reportID, title)
}

func (s *Service) DeleteReport(ctx context.Context, reportID string) error {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return err
	}
	if len(reports) <= 1 {
		return domainError(http.StatusBadRequest, "LAST_REPORT", "Cannot delete the last report.", nil)
	}
	found := false
	for _, r := range reports {
		if r.ID == reportID {
			found = true
			break
		}
	}
	if !found {
		return sql.ErrNoRows
	}
	return s.store.DeleteReport(ctx, reportID)
}

// ReportContent returns the saved editor document, or nil when the report
// has never been saved.
func (s *Service) ReportContent(ctx context.Context, reportID string) (json.RawMessage, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return report.ContentJSON, nil
}

// SaveReportContent persists the editor document and records a revision in
// the report's content history.
func (s *Service) SaveReportContent(ctx context.Context, reportID string, content json.RawMessage) error {
	if len(content) == 0 {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "No content provided", nil)
	}
	if _, err := doctree.Parse(content); err != nil {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Content is not a valid document", nil)
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return err
	}
	if err := s.store.SaveReportContent(ctx, reportID, content); err != nil {
		return err
	}
	if s.repos != nil {
		if err := s.repos.EnsureReportRepo(reportID, nil); err != nil {
			log.Printf("app: init report repo %s: %v", reportID, err)
		} else if _, err := s.repos.CommitContent(reportID, content, "Save report content"); err != nil {
			log.Printf("app: commit report content %s: %v", reportID, err)
		}
	}
	return nil
}

// ReportHistory lists saved revisions of the report content, newest first.
func (s *Service) ReportHistory(ctx context.Context, reportID string, limit int) ([]store.CommitInfo, error) {
	if s.repos == nil {
		return []store.CommitInfo{}, nil
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	history, err := s.repos.History(reportID, limit)
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ReportContentAt reads the report content as of a given revision hash.
func (s *Service) ReportContentAt(ctx context.Context, reportID, hash string) (json.RawMessage, error) {
	if s.repos == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "History is not enabled", nil)
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	return s.repos.GetContentByHash(reportID, hash)
}

type CreateCitationInput struct {
	SourceDocID    string  `json:"source_doc_id"`
	PageNumber     string  `json:"page_number"`
	CorrectedText  *string `json:"corrected_text"`
	Prefix         string  `json:"prefix"`
	Suffix         string  `json:"suffix"`
	SuppressAuthor bool    `json:"suppress_author"`
}

type CitationResult struct {
	Success     bool   `json:"success"`
	UUID        string `json:"citation_instance_uuid"`
	InTextLabel string `json:"in_text_label"`
	DataDocID   string `json:"data_doc_id"`
	DataDocType string `json:"data_doc_type"`
}

// CreateCitation persists one citation instance and returns everything the
// editor needs to build the pill: the new uuid, the source's file type, and
// the rendered in-text label.
func (s *Service) CreateCitation(ctx context.Context, reportID string, input CreateCitationInput) (CitationResult, error) {
	if strings.TrimSpace(input.SourceDocID) == "" || strings.TrimSpace(input.PageNumber) == "" {
		return CitationResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields", nil)
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return CitationResult{}, err
	}

	doc, err := s.store.GetDocument(ctx, input.SourceDocID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CitationResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Source document not found.", nil)
		}
		return CitationResult{}, err
	}

	newUUID := uuid.NewString()
	if err := s.store.InsertCitation(ctx, store.Citation{
		UUID:           newUUID,
		ReportID:       reportID,
		SourceDocID:    input.SourceDocID,
		PageNumber:     input.PageNumber,
		QuotedText:     input.CorrectedText,
		Prefix:         input.Prefix,
		Suffix:         input.Suffix,
		SuppressAuthor: input.SuppressAuthor,
		CreatedAt:      s.now(),
	}); err != nil {
		return CitationResult{}, err
	}

	label := s.inTextLabel(ctx, doc, input)

	return CitationResult{
		Success:     true,
		UUID:        newUUID,
		InTextLabel: label,
		DataDocID:   input.SourceDocID,
		DataDocType: doc.FileType,
	}, nil
}

// cslMeta is the slice of CSL-JSON the label generator and bibliography
// care about.
type cslMeta struct {
	Author []struct {
		Family string `json:"family"`
	} `json:"author"`
	Issued struct {
		DateParts [][]any `json:"date-parts"`
	} `json:"issued"`
	Title          string `json:"title"`
	ContainerTitle string `json:"container-title"`
	Publisher      string `json:"publisher"`
}

func (m *cslMeta) firstAuthor() string {
	if m == nil || len(m.Author) == 0 {
		return ""
	}
	return m.Author[0].Family
}

func (m *cslMeta) year() string {
	if m == nil || len(m.Issued.DateParts) == 0 || len(m.Issued.DateParts[0]) == 0 {
		return ""
	}
	switch v := m.Issued.DateParts[0][0].(type) {
	case float64:
		return strconv.Itoa(int(v))
	case string:
		return v
	default:
		return ""
	}
}

func (s *Service) documentMeta(ctx context.Context, docID string) *cslMeta {
	raw, err := s.store.GetMetadata(ctx, docID)
	if err != nil || raw == "" {
		return nil
	}
	var meta cslMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

// inTextLabel renders the parenthetical label for a new citation. It
// degrades through author/year, year alone, short title, and finally the
// document's path so a pill never goes in unlabelled.
func (s *Service) inTextLabel(ctx context.Context, doc store.Document, input CreateCitationInput) string {
	meta := s.documentMeta(ctx, doc.ID)
	author := meta.firstAuthor()
	year := meta.year()
	title := ""
	if meta != nil {
		title = meta.Title
	}

	var mainPart string
	switch {
	case author != "" && year != "" && !input.SuppressAuthor:
		mainPart = author + ", " + year
	case year != "" && input.SuppressAuthor:
		mainPart = year
	case title != "" && year != "":
		mainPart = fmt.Sprintf("%q, %s", shortTitle(title), year)
	case author != "" && !input.SuppressAuthor:
		mainPart = author
	case title != "":
		mainPart = fmt.Sprintf("%q", shortTitle(title))
	default:
		mainPart = doc.RelativePath
	}

	full := mainPart
	if strings.TrimSpace(input.PageNumber) != "" {
		full += ", p. " + input.PageNumber
	}
	if prefix := strings.TrimSpace(input.Prefix); prefix != "" {
		full = prefix + " " + full
	}
	if suffix := strings.TrimSpace(input.Suffix); suffix != "" {
		full += ", " + suffix
	}
	return "(" + full + ")"
}

func shortTitle(title string) string {
	if len(title) > 25 {
		return title[:25] + "..."
	}
	return title
}

type BibliographyEntry struct {
	DocID        string `json:"doc_id"`
	RelativePath string `json:"relative_path"`
	Label        string `json:"label"`
	CiteCount    int    `json:"cite_count"`
}

// Bibliography walks the submitted editor document, counts the live pills
// per source document, and returns one entry per cited source ordered by
// path. Pills whose source no longer exists are dropped.
func (s *Service) Bibliography(ctx context.Context, content json.RawMessage) ([]BibliographyEntry, error) {
	if len(content) == 0 {
		return []BibliographyEntry{}, nil
	}
	root, err := doctree.Parse(content)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Content is not a valid document", nil)
	}

	counts := map[string]int{}
	doctree.Walk(root, func(n *doctree.Node) bool {
		if n.Type != doctree.KindCitationPill {
			return true
		}
		if docID := n.StringAttr("data-doc-id"); docID != "" {
			counts[docID]++
		}
		return true
	})
	if len(counts) == 0 {
		return []BibliographyEntry{}, nil
	}

	entries := make([]BibliographyEntry, 0, len(counts))
	for docID, count := range counts {
		doc, err := s.store.GetDocument(ctx, docID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		entries = append(entries, BibliographyEntry{
			DocID:        doc.ID,
			RelativePath: doc.RelativePath,
			Label:        s.bibliographyLabel(ctx, doc),
			CiteCount:    count,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelativePath < entries[j].RelativePath
	})
	return entries, nil
}

func (s *Service) bibliographyLabel(ctx context.Context, doc store.Document) string {
	meta := s.documentMeta(ctx, doc.ID)
	if meta == nil {
		return doc.RelativePath
	}
	var parts []string
	if author := meta.firstAuthor(); author != "" {
		parts = append(parts, author)
	}
	if year := meta.year(); year != "" {
		parts = append(parts, "("+year+")")
	}
	if meta.Title != "" {
		parts = append(parts, meta.Title)
	}
	if meta.ContainerTitle != "" {
		parts = append(parts, meta.ContainerTitle)
	} else if meta.Publisher != "" {
		parts = append(parts, meta.Publisher)
	}
	if len(parts) == 0 {
		return doc.RelativePath
	}
	return strings.Join(parts, ". ")
}

type MediaStatusPayload struct {
	Linked   bool    `json:"linked"`
	Path     string  `json:"path,omitempty"`
	Type     string  `json:"type,omitempty"`
	Source   string  `json:"source,omitempty"`
	Position float64 `json:"position,omitempty"`
	Offset   float64 `json:"offset"`
}

// MediaStatus resolves a document's media link. A web url wins over local
// paths; local paths are served under /documents/.
func (s *Service) MediaStatus(ctx context.Context, docID string) (MediaStatusPayload, error) {
	if cached, err := s.cache.MediaStatus(ctx, docID); err == nil && cached != nil {
		var payload MediaStatusPayload
		if err := json.Unmarshal(cached, &payload); err == nil {
			return payload, nil
		}
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return MediaStatusPayload{}, err
	}

	payload := MediaStatusPayload{
		Position: doc.LastAudioPosition,
		Offset:   doc.AudioOffsetSeconds,
	}
	switch {
	case doc.LinkedAudioURL != nil && *doc.LinkedAudioURL != "":
		payload.Linked = true
		payload.Path = *doc.LinkedAudioURL
		payload.Source = "web"
		if strings.HasSuffix(strings.ToLower(*doc.LinkedAudioURL), ".mp4") {
			payload.Type = "video"
		} else {
			payload.Type = "audio"
		}
	case doc.LinkedVideoPath != nil && *doc.LinkedVideoPath != "":
		payload.Linked = true
		payload.Path = servedPath(*doc.LinkedVideoPath)
		payload.Type = "video"
		payload.Source = "local"
	case doc.LinkedAudioPath != nil && *doc.LinkedAudioPath != "":
		payload.Linked = true
		payload.Path = servedPath(*doc.LinkedAudioPath)
		payload.Type = "audio"
		payload.Source = "local"
	default:
		return MediaStatusPayload{Offset: doc.AudioOffsetSeconds}, nil
	}

	if encoded, err := json.Marshal(payload); err == nil {
		if err := s.cache.SetMediaStatus(ctx, docID, encoded); err != nil {
			log.Printf("app: media status cache write: %v", err)
		}
	}
	return payload, nil
}

func servedPath(relativePath string) string {
	return "/documents/" + relativePath
}

type ScanResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// FindLocalMedia scans the documents directory for a media file whose name
// matches the document's basename. The document's own directory wins; the
// first match from a recursive walk is used otherwise.
func (s *Service) FindLocalMedia(ctx context.Context, docID, mediaType string) (ScanResult, error) {
	var ext string
	switch mediaType {
	case "audio":
		ext = ".mp3"
	case "video":
		ext = ".mp4"
	default:
		return ScanResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Unknown media type.", nil)
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return ScanResult{}, err
	}
	if !strings.EqualFold(doc.FileType, "SRT") {
		return ScanResult{}, domainError(http.StatusBadRequest, "NOT_TIMED_TEXT", "Document is not an SRT file.", nil)
	}

	base := path.Base(doc.RelativePath)
	mediaName := strings.TrimSuffix(base, path.Ext(base)) + ext

	found, err := s.locateMediaFile(doc.RelativePath, mediaName)
	if err != nil {
		return ScanResult{}, err
	}
	if found == "" {
		return ScanResult{}, domainError(http.StatusNotFound, "MEDIA_NOT_FOUND",
			fmt.Sprintf("No '%s' file found anywhere.", mediaName), nil)
	}

	var audioPath, videoPath *string
	if ext == ".mp3" {
		audioPath = &found
	} else {
		videoPath = &found
	}
	if err := s.store.LinkLocalMedia(ctx, docID, audioPath, videoPath); err != nil {
		return ScanResult{}, err
	}
	s.invalidateMediaStatus(ctx, docID)

	return ScanResult{Success: true, MediaURL: servedPath(found)}, nil
}

// locateMediaFile checks the document's own directory first, then walks the
// whole library for the first file with a matching name.
func (s *Service) locateMediaFile(docRelativePath, mediaName string) (string, error) {
	if s.documentsFS == nil {
		return "", nil
	}

	sameDir := path.Join(path.Dir(docRelativePath), mediaName)
	if info, err := fs.Stat(s.documentsFS, sameDir); err == nil && !info.IsDir() {
		return sameDir, nil
	}

	var found string
	err := fs.WalkDir(s.documentsFS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == mediaName {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan documents dir: %w", err)
	}
	return found, nil
}

// LinkFromURL links the document to remote media, clearing any local links.
func (s *Service) LinkFromURL(ctx context.Context, docID, url string) (ScanResult, error) {
	if strings.TrimSpace(url) == "" {
		return ScanResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "URL is required.", nil)
	}
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return ScanResult{}, err
	}
	if err := s.store.LinkWebMedia(ctx, docID, url); err != nil {
		return ScanResult{}, err
	}
	s.invalidateMediaStatus(ctx, docID)
	return ScanResult{Success: true, MediaURL: url}, nil
}

// UnlinkMedia clears every media link on the document.
func (s *Service) UnlinkMedia(ctx context.Context, docID string) error {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.store.UnlinkMedia(ctx, docID); err != nil {
		return err
	}
	s.invalidateMediaStatus(ctx, docID)
	return nil
}

// SaveAudioOffset persists the sync offset and notifies every open viewer
// for the document so they re-time their cues without a reload.
func (s *Service) SaveAudioOffset(ctx context.Context, docID string, offset float64) error {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.store.SaveAudioOffset(ctx, docID, offset); err != nil {
		return err
	}
	s.invalidateMediaStatus(ctx, docID)
	if s.hub != nil {
		s.hub.Broadcast(docID, frame.Envelope{
			Type:      frame.OffsetUpdated,
			DocID:     docID,
			NewOffset: offset,
		})
	}
	return nil
}

func (s *Service) SaveAudioPosition(ctx context.Context, docID string, position float64) error {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.store.SaveAudioPosition(ctx, docID, position); err != nil {
		return err
	}
	s.invalidateMediaStatus(ctx, docID)
	return nil
}

func (s *Service) invalidateMediaStatus(ctx context.Context, docID string) {
	if err := s.cache.InvalidateMediaStatus(ctx, docID); err != nil {
		log.Printf("app: media status cache invalidate: %v", err)
	}
}

type URLProbeResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckURLStatus probes a web media link with a HEAD request. "online"
// means reachable with a media-looking content type, "warning" reachable
// but maybe not media, "offline" a non-2xx response.
func (s *Service) CheckURLStatus(ctx context.Context, url string) URLProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return URLProbeResult{Success: false, Status: "error", Message: fmt.Sprintf("Error checking URL: %v", err)}
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return URLProbeResult{Success: false, Status: "error", Message: fmt.Sprintf("Error checking URL: %v", err)}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		for _, hint := range []string{"audio", "video", "octet-stream"} {
			if strings.Contains(contentType, hint) {
				return URLProbeResult{
					Success: true,
					Status:  "online",
					Message: fmt.Sprintf("Link is online. (Content-Type: %s)", contentType),
				}
			}
		}
		return URLProbeResult{
			Success: true,
			Status:  "warning",
			Message: fmt.Sprintf("Link is online, but may not be audio/video. (Content-Type: %s)", contentType),
		}
	}
	return URLProbeResult{
		Success: true,
		Status:  "offline",
		Message: fmt.Sprintf("Link is offline or inaccessible (Status: %d).", resp.StatusCode),
	}
}

// Metadata returns the document's CSL-JSON record, empty when none is saved.
func (s *Service) Metadata(ctx context.Context, docID string) (string, error) {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return "", err
	}
	return s.store.GetMetadata(ctx, docID)
}

// SaveMetadata validates and stores the document's CSL-JSON record. Invalid
// JSON is stored as empty, matching a clear of the record.
func (s *Service) SaveMetadata(ctx context.Context, docID, cslJSON string) error {
	if _, err := s.store.GetDocument(ctx, docID); err != nil {
		return err
	}
	if cslJSON != "" {
		var probe map[string]any
		if err := json.Unmarshal([]byte(cslJSON), &probe); err != nil {
			cslJSON = ""
		}
	}
	return s.store.SaveMetadata(ctx, docID, cslJSON)
}

// ReindexDocuments pushes the full library into the search index.
func (s *Service) ReindexDocuments(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	records := make([]search.DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, search.DocumentRecord{
			ID:             doc.ID,
			RelativePath:   doc.RelativePath,
			FileType:       doc.FileType,
			FileModifiedAt: doc.FileModifiedAt,
		})
	}
	s.search.ReindexAll(records)
	return nil
}
