package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gazette-ingest/pkg/domain"
)

// FileSaver writes each record as indented JSON to
// <dir>/<jurisdiction>/json/<document name>_<url hash>_analysis.json.
// The hash keeps documents that share a file name apart.
type FileSaver struct {
	dir string
}

// NewFileSaver creates a saver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{dir: dir}
}

var unsafePathChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// SaveRecord writes record to disk, replacing an earlier file for the same document.
func (s *FileSaver) SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.PathFor(record)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// PathFor returns the file a record is written to.
func (s *FileSaver) PathFor(record *domain.ValidatedRecord) string {
	jurisdiction := safeSegment(record.Record.Jurisdiction, "unknown")

	name := record.Record.FilePath
	if name == "" {
		name = filepath.Base(record.SourceURL)
	}
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	name = safeSegment(name, record.Record.UniqueID)
	if record.SourceURL != "" {
		name += "_" + urlTag(record.SourceURL)
	}

	return filepath.Join(s.dir, jurisdiction, "json", name+"_analysis.json")
}

// urlTag is a short, stable digest of a document URL.
func urlTag(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:4])
}

func safeSegment(s, fallback string) string {
	s = strings.Trim(unsafePathChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_.")
	if s == "" || strings.EqualFold(s, domain.NoneValue) {
		s = strings.Trim(unsafePathChars.ReplaceAllString(fallback, "_"), "_.")
	}
	if s == "" {
		s = "unknown"
	}
	return s
}

// MultiSaver fans a record out to several savers. Every saver is attempted;
// the errors of those that failed are joined.
type MultiSaver struct {
	savers []RecordSaver
}

// NewMultiSaver combines savers, ignoring nil ones.
func NewMultiSaver(savers ...RecordSaver) *MultiSaver {
	m := &MultiSaver{}
	for _, s := range savers {
		if s != nil {
			m.savers = append(m.savers, s)
		}
	}
	return m
}

// Len returns the number of combined savers.
func (m *MultiSaver) Len() int { return len(m.savers) }

// SaveRecord saves record with every saver.
func (m *MultiSaver) SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error {
	var errs []error
	for _, s := range m.savers {
		if err := s.SaveRecord(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
