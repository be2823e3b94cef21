package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gazette-ingest/pkg/domain"
)

func TestFileSaver_SaveRecord(t *testing.T) {
	dir := t.TempDir()
	saver := NewFileSaver(dir)

	record := &domain.ValidatedRecord{
		SourceURL: "https://g.test/docs/decision-45.pdf",
		Record: domain.DraftRecord{
			Jurisdiction: "Saudi Arabia",
			FilePath:     "decision-45.pdf",
			NoticeName:   "Decision 45",
			UniqueID:     "abc",
		},
	}

	if err := saver.SaveRecord(context.Background(), record); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := filepath.Join(dir, "Saudi_Arabia", "json", "decision-45_"+tagOf(record.SourceURL)+"_analysis.json")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("Expected file at %s: %v", want, err)
	}

	var got domain.ValidatedRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if got.Record.NoticeName != "Decision 45" || got.SourceURL != record.SourceURL {
		t.Errorf("unexpected saved record: %+v", got)
	}

	// Saving again replaces the file.
	record.Record.NoticeName = "Decision 45 (amended)"
	if err := saver.SaveRecord(context.Background(), record); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, _ = os.ReadFile(want)
	_ = json.Unmarshal(data, &got)
	if got.Record.NoticeName != "Decision 45 (amended)" {
		t.Errorf("Expected file to be replaced, got %q", got.Record.NoticeName)
	}
}

func TestFileSaver_PathFor(t *testing.T) {
	saver := NewFileSaver("out")

	tests := []struct {
		name   string
		record domain.ValidatedRecord
		want   string
	}{
		{
			name:   "file path",
			record: domain.ValidatedRecord{Record: domain.DraftRecord{Jurisdiction: "Kuwait", FilePath: "a.pdf"}},
			want:   filepath.Join("out", "Kuwait", "json", "a_analysis.json"),
		},
		{
			name:   "source url",
			record: domain.ValidatedRecord{SourceURL: "https://g.test/x/b.pdf", Record: domain.DraftRecord{Jurisdiction: "Kuwait"}},
			want:   filepath.Join("out", "Kuwait", "json", "b_"+tagOf("https://g.test/x/b.pdf")+"_analysis.json"),
		},
		{
			name:   "unknown jurisdiction",
			record: domain.ValidatedRecord{Record: domain.DraftRecord{Jurisdiction: "None", FilePath: "c.pdf"}},
			want:   filepath.Join("out", "unknown", "json", "c_analysis.json"),
		},
		{
			name:   "path traversal",
			record: domain.ValidatedRecord{Record: domain.DraftRecord{Jurisdiction: "../../etc", FilePath: "d.pdf"}},
			want:   filepath.Join("out", "etc", "json", "d_analysis.json"),
		},
		{
			name:   "arabic name",
			record: domain.ValidatedRecord{Record: domain.DraftRecord{Jurisdiction: "الكويت", FilePath: "قرار.pdf"}},
			want:   filepath.Join("out", "الكويت", "json", "قرار_analysis.json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := saver.PathFor(&tt.record); got != tt.want {
				t.Errorf("PathFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func tagOf(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:4])
}

func TestFileSaver_SameFileNameDifferentURL(t *testing.T) {
	dir := t.TempDir()
	saver := NewFileSaver(dir)

	first := &domain.ValidatedRecord{
		SourceURL: "https://g.test/Download.aspx?id=1",
		Record:    domain.DraftRecord{Jurisdiction: "Kuwait", FilePath: "Download.aspx", NoticeName: "one"},
	}
	second := &domain.ValidatedRecord{
		SourceURL: "https://g.test/Download.aspx?id=2",
		Record:    domain.DraftRecord{Jurisdiction: "Kuwait", FilePath: "Download.aspx", NoticeName: "two"},
	}

	if saver.PathFor(first) == saver.PathFor(second) {
		t.Fatalf("Expected distinct paths, both got %s", saver.PathFor(first))
	}
	if saver.PathFor(first) != saver.PathFor(&domain.ValidatedRecord{SourceURL: first.SourceURL, Record: first.Record}) {
		t.Error("Expected the same URL to map to the same path")
	}

	for _, rec := range []*domain.ValidatedRecord{first, second} {
		if err := saver.SaveRecord(context.Background(), rec); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}
	for _, rec := range []*domain.ValidatedRecord{first, second} {
		data, err := os.ReadFile(saver.PathFor(rec))
		if err != nil {
			t.Fatalf("Expected file for %s: %v", rec.SourceURL, err)
		}
		var got domain.ValidatedRecord
		if err := json.Unmarshal(data, &got); err != nil || got.Record.NoticeName != rec.Record.NoticeName {
			t.Errorf("file for %s holds %q (err %v)", rec.SourceURL, got.Record.NoticeName, err)
		}
	}
}

func TestMultiSaver_SaveRecord(t *testing.T) {
	first := &mockSaver{}
	failing := &mockSaver{fail: map[string]error{"u": errors.New("db down")}}
	last := &mockSaver{}

	multi := NewMultiSaver(first, nil, failing, last)
	if multi.Len() != 3 {
		t.Fatalf("Expected nil savers to be dropped, got %d", multi.Len())
	}

	err := multi.SaveRecord(context.Background(), &domain.ValidatedRecord{SourceURL: "u"})
	if err == nil {
		t.Fatal("Expected joined error, got nil")
	}
	if first.count() != 1 || last.count() != 1 {
		t.Errorf("Expected every saver to be attempted, got first=%d last=%d", first.count(), last.count())
	}

	if err := NewMultiSaver().SaveRecord(context.Background(), &domain.ValidatedRecord{}); err != nil {
		t.Errorf("Expected empty MultiSaver to succeed, got: %v", err)
	}
}
