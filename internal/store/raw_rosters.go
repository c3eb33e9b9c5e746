package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawRoster is the uploaded file a course was derived from.
type RawRoster struct {
	CourseTag   string
	SourceName  string
	Payload     []byte
	PayloadHash string
	StoredAt    time.Time
}

// StoreRawRoster keeps a compressed copy of an uploaded roster so the course
// can be derived again later. A later upload for the same tag replaces it.
func (s *Store) StoreRawRoster(tag, sourceName string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return "", fmt.Errorf("compress roster: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}

	hashHex := PayloadHash(payload)

	_, err := s.db.Exec(`
		INSERT INTO raw_rosters (course_tag, source_name, payload_compressed, payload_hash, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(course_tag) DO UPDATE SET
			source_name = excluded.source_name,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			stored_at = excluded.stored_at
	`, tag, sourceName, buf.Bytes(), hashHex, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert raw roster: %w", err)
	}
	return hashHex, nil
}

// GetRawRoster returns the decompressed roster for tag, or nil if none is stored.
func (s *Store) GetRawRoster(tag string) (*RawRoster, error) {
	var (
		r          RawRoster
		compressed []byte
	)
	err := s.db.QueryRow(`
		SELECT course_tag, source_name, payload_compressed, payload_hash, stored_at
		FROM raw_rosters WHERE course_tag = ?
	`, tag).Scan(&r.CourseTag, &r.SourceName, &compressed, &r.PayloadHash, &r.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query raw roster: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	r.Payload, err = io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress roster: %w", err)
	}
	return &r, nil
}

// RawRosterHash returns the sha256 of the roster kept for tag, or "" when
// none is stored.
func (s *Store) RawRosterHash(tag string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT payload_hash FROM raw_rosters WHERE course_tag = ?`, tag).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query raw roster hash: %w", err)
	}
	return hash, nil
}

// PayloadHash is the hash StoreRawRoster records for payload.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
