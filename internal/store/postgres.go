package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Documents ──

const documentColumns = `id, relative_path, file_type, file_modified_at,
	linked_audio_path, linked_video_path, linked_audio_url,
	last_audio_position, audio_offset_seconds`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.RelativePath, &doc.FileType, &doc.FileModifiedAt,
		&doc.LinkedAudioPath, &doc.LinkedVideoPath, &doc.LinkedAudioURL,
		&doc.LastAudioPosition, &doc.AudioOffsetSeconds)
	return doc, err
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, docID)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY relative_path`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, relative_path, file_type, file_modified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET relative_path=EXCLUDED.relative_path, file_type=EXCLUDED.file_type
	`, doc.ID, doc.RelativePath, doc.FileType, doc.FileModifiedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// DocumentTypes resolves a batch of document ids to their file types in one
// query. Ids not present in the table are simply absent from the result.
func (s *PostgresStore) DocumentTypes(ctx context.Context, docIDs []string) (map[string]string, error) {
	if len(docIDs) == 0 {
		return map[string]string{}, nil
	}
	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT id, file_type FROM documents WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("document types: %w", err)
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var id, fileType string
		if err := rows.Scan(&id, &fileType); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		types[id] = fileType
	}
	return types, rows.Err()
}

// ── Media link ──

// LinkLocalMedia records a local media file for the document, clearing any
// web link and resetting the playback position. Exactly one of audioPath or
// videoPath is non-nil.
func (s *PostgresStore) LinkLocalMedia(ctx context.Context, docID string, audioPath, videoPath *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET linked_audio_path=$1, linked_video_path=$2, linked_audio_url=NULL, last_audio_position=0.0
		WHERE id=$3
	`, audioPath, videoPath, docID)
	if err != nil {
		return fmt.Errorf("link local media: %w", err)
	}
	return nil
}

// LinkWebMedia records a remote media URL, clearing any local link.
func (s *PostgresStore) LinkWebMedia(ctx context.Context, docID, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET linked_audio_url=$1, linked_audio_path=NULL, linked_video_path=NULL, last_audio_position=0.0
		WHERE id=$2
	`, url, docID)
	if err != nil {
		return fmt.Errorf("link web media: %w", err)
	}
	return nil
}

// UnlinkMedia removes any media link and resets the playback position. The
// offset column is left alone so a re-link starts from the status endpoint's
// stored value.
func (s *PostgresStore) UnlinkMedia(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET linked_audio_path=NULL, linked_video_path=NULL, linked_audio_url=NULL, last_audio_position=0.0
		WHERE id=$1
	`, docID)
	if err != nil {
		return fmt.Errorf("unlink media: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAudioOffset(ctx context.Context, docID string, offset float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET audio_offset_seconds=$1 WHERE id=$2`, offset, docID)
	if err != nil {
		return fmt.Errorf("save audio offset: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAudioPosition(ctx context.Context, docID string, position float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET last_audio_position=$1 WHERE id=$2`, position, docID)
	if err != nil {
		return fmt.Errorf("save audio position: %w", err)
	}
	return nil
}

// ── Synthesis reports ──

func (s *PostgresStore) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at, updated_at FROM synthesis_reports ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var report Report
		if err := rows.Scan(&report.ID, &report.Title, &report.CreatedAt, &report.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (Report, error) {
	var report Report
	var content sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content_json, created_at, updated_at FROM synthesis_reports WHERE id=$1
	`, reportID).Scan(&report.ID, &report.Title, &content, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return Report{}, err
	}
	if content.Valid {
		report.ContentJSON = []byte(content.String)
	}
	return report, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, report Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synthesis_reports (id, title) VALUES ($1, $2)
	`, report.ID, report.Title)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameReport(ctx context.Context, reportID, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE synthesis_reports SET title=$1, updated_at=NOW() WHERE id=$2`, title, reportID)
	if err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteReport(ctx context.Context, reportID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM synthesis_reports WHERE id=$1`, reportID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SaveReportContent(ctx context.Context, reportID string, content []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE synthesis_reports SET content_json=$1, updated_at=NOW() WHERE id=$2
	`, string(content), reportID)
	if err != nil {
		return fmt.Errorf("save report content: %w", err)
	}
	return requireRow(result)
}

// ── Citations ──

func (s *PostgresStore) InsertCitation(ctx context.Context, c Citation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synthesis_citations
			(citation_instance_uuid, report_id, source_doc_id, page_number, quoted_text, prefix, suffix, suppress_author)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.UUID, c.ReportID, c.SourceDocID, c.PageNumber, c.QuotedText, c.Prefix, c.Suffix, c.SuppressAuthor)
	if err != nil {
		return fmt.Errorf("insert citation: %w", err)
	}
	return nil
}

// ── Metadata ──

// GetMetadata returns the document's CSL JSON, or "" when none is stored.
func (s *PostgresStore) GetMetadata(ctx context.Context, docID string) (string, error) {
	var csl sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT csl_json FROM document_metadata WHERE doc_id=$1`, docID).Scan(&csl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return csl.String, nil
}

func (s *PostgresStore) SaveMetadata(ctx context.Context, docID, cslJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_metadata (doc_id, csl_json, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (doc_id) DO UPDATE SET csl_json=EXCLUDED.csl_json, last_updated=NOW()
	`, docID, cslJSON)
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
