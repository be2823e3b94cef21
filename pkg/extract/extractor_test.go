package extract

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gazette-ingest/pkg/domain"
)

var fakePDF = []byte("%PDF-1.4 fake")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// longText returns a text long enough to pass the minimum length check,
// tagged so the fixed scorer can recognise it.
func longText(tag string) string {
	return tag + " " + strings.Repeat("notice text ", 10)
}

func fixedMethod(m domain.Method, text string) Method {
	return MethodFunc{ID: m, Fn: func(context.Context, []byte) (string, error) { return text, nil }}
}

func failingMethod(m domain.Method, err error) Method {
	return MethodFunc{ID: m, Fn: func(context.Context, []byte) (string, error) { return "", err }}
}

// fixedScorer scores texts by their leading tag.
func fixedScorer(scores map[string]float64) func(string) float64 {
	return func(text string) float64 {
		tag, _, _ := strings.Cut(text, " ")
		return scores[tag]
	}
}

type countingMethod struct {
	Method
	calls int
}

func (c *countingMethod) Attempt(ctx context.Context, pdf []byte) (string, error) {
	c.calls++
	return c.Method.Attempt(ctx, pdf)
}

func TestExtract_EscalatesToOCRWhenBetter(t *testing.T) {
	ocr := fixedMethod(domain.MethodOCR, longText("ocr"))
	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithOCR(ocr),
		WithScorer(fixedScorer(map[string]float64{"layout": 40, "ocr": 85})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Method != domain.MethodOCR {
		t.Errorf("Method = %q, want %q", got.Method, domain.MethodOCR)
	}
	if got.Score != 85 {
		t.Errorf("Score = %v, want 85", got.Score)
	}
	if !got.OCRAttempted || !got.UsedOCR() {
		t.Errorf("expected OCR to be attempted and used, got %+v", got.Provenance())
	}
	if len(got.Candidates) != 2 {
		t.Errorf("Candidates = %d, want 2", len(got.Candidates))
	}
}

func TestExtract_KeepsOriginalWhenOCRNotBetter(t *testing.T) {
	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithOCR(fixedMethod(domain.MethodOCR, longText("ocr"))),
		WithScorer(fixedScorer(map[string]float64{"layout": 60, "ocr": 60})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Method != domain.MethodLayout {
		t.Errorf("Method = %q, want %q", got.Method, domain.MethodLayout)
	}
	if !got.OCRAttempted {
		t.Error("expected OCR to be attempted below threshold")
	}
	if got.UsedOCR() {
		t.Error("OCR must not replace an equal score")
	}
}

func TestExtract_OCRMargin(t *testing.T) {
	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithOCR(fixedMethod(domain.MethodOCR, longText("ocr"))),
		WithOCRMargin(15),
		WithScorer(fixedScorer(map[string]float64{"layout": 50, "ocr": 60})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Method != domain.MethodLayout {
		t.Errorf("Method = %q, want layout when OCR is within the margin", got.Method)
	}
}

func TestExtract_SkipsOCRAboveThreshold(t *testing.T) {
	ocr := &countingMethod{Method: fixedMethod(domain.MethodOCR, longText("ocr"))}
	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithOCR(ocr),
		WithScorer(fixedScorer(map[string]float64{"layout": 80, "ocr": 99})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if ocr.calls != 0 {
		t.Errorf("OCR called %d times, want 0", ocr.calls)
	}
	if got.OCRAttempted {
		t.Error("OCRAttempted should be false")
	}
}

func TestExtract_AllZeroFails(t *testing.T) {
	e := New(
		WithMethods(
			fixedMethod(domain.MethodLayout, longText("layout")),
			failingMethod(domain.MethodMuPDF, errors.New("broken xref")),
			fixedMethod(domain.MethodPlain, "short"),
		),
		WithOCR(fixedMethod(domain.MethodOCR, "")),
		WithScorer(fixedScorer(map[string]float64{})),
		WithLogger(quietLogger()),
	)

	_, err := e.Extract(context.Background(), fakePDF)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Extract() error = %v, want ErrExtractionFailed", err)
	}

	var failed *ExtractionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error %T is not *ExtractionFailedError", err)
	}
	for _, m := range []domain.Method{domain.MethodLayout, domain.MethodMuPDF, domain.MethodPlain, domain.MethodOCR} {
		if _, ok := failed.Scores[m]; !ok {
			t.Errorf("missing score for %q", m)
		}
	}
	if failed.Errs[domain.MethodMuPDF] == nil {
		t.Error("expected mupdf error to be recorded")
	}
}

func TestExtract_NoOCRConfigured(t *testing.T) {
	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithScorer(fixedScorer(map[string]float64{"layout": 20})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.OCRAttempted {
		t.Error("OCR cannot be attempted when not configured")
	}
	if got.Method != domain.MethodLayout {
		t.Errorf("Method = %q, want layout", got.Method)
	}
}

func TestExtract_TieGoesToEarlierMethod(t *testing.T) {
	e := New(
		WithMethods(
			fixedMethod(domain.MethodLayout, longText("a")),
			fixedMethod(domain.MethodMuPDF, longText("b")),
			fixedMethod(domain.MethodPlain, longText("c")),
		),
		WithScorer(fixedScorer(map[string]float64{"a": 72, "b": 72, "c": 71})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Method != domain.MethodLayout {
		t.Errorf("Method = %q, want layout on tie", got.Method)
	}
}

func TestExtract_PanickingMethodScoresZero(t *testing.T) {
	panicky := MethodFunc{ID: domain.MethodMuPDF, Fn: func(context.Context, []byte) (string, error) {
		panic("corrupt stream")
	}}
	e := New(
		WithMethods(panicky, fixedMethod(domain.MethodPlain, longText("plain"))),
		WithScorer(fixedScorer(map[string]float64{"plain": 75})),
		WithLogger(quietLogger()),
	)

	got, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Method != domain.MethodPlain {
		t.Errorf("Method = %q, want plain", got.Method)
	}
	if got.Candidates[0].Err == nil || got.Candidates[0].Score != 0 {
		t.Errorf("panicking candidate = %+v, want zero score with error", got.Candidates[0])
	}
}

func TestExtract_EmptyPDF(t *testing.T) {
	e := New(WithLogger(quietLogger()))

	_, err := e.Extract(context.Background(), nil)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Extract(nil) error = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(
		WithMethods(fixedMethod(domain.MethodLayout, longText("layout"))),
		WithLogger(quietLogger()),
	)

	_, err := e.Extract(ctx, fakePDF)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := New(
		WithMethods(
			fixedMethod(domain.MethodLayout, longText("a")),
			fixedMethod(domain.MethodPlain, longText("b")),
		),
		WithOCR(fixedMethod(domain.MethodOCR, longText("c"))),
		WithScorer(fixedScorer(map[string]float64{"a": 30, "b": 55, "c": 50})),
		WithLogger(quietLogger()),
	)

	first, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := e.Extract(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if first.Text != second.Text || first.Method != second.Method || first.Score != second.Score {
		t.Errorf("results differ: %+v vs %+v", first.Provenance(), second.Provenance())
	}
	if first.Method != domain.MethodPlain {
		t.Errorf("Method = %q, want plain", first.Method)
	}
}

type fakeRasterizer struct {
	pages []image.Image
	err   error
}

func (f fakeRasterizer) Rasterize(_ context.Context, _ []byte, _ float64, maxPages int) ([]image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) > maxPages {
		return f.pages[:maxPages], nil
	}
	return f.pages, nil
}

type fakeRecognizer struct {
	texts []string
	calls int
	langs []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, png []byte, langs []string) (string, error) {
	if len(png) == 0 {
		return "", errors.New("empty image")
	}
	f.langs = langs
	text := f.texts[f.calls%len(f.texts)]
	f.calls++
	if text == "" {
		return "", errors.New("recognition failed")
	}
	return text, nil
}

func blankPage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestOCRMethod_JoinsPages(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"first page", "", "third page"}}
	m := NewOCRMethod(
		fakeRasterizer{pages: []image.Image{blankPage(10, 10), blankPage(10, 10), blankPage(10, 10)}},
		rec,
		WithOCRLogger(quietLogger()),
	)

	text, err := m.Attempt(context.Background(), fakePDF)
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !strings.Contains(text, "--- Page 1 ---\nfirst page") || !strings.Contains(text, "--- Page 3 ---\nthird page") {
		t.Errorf("unexpected OCR text: %q", text)
	}
	if strings.Contains(text, "Page 2") {
		t.Errorf("failed page should be skipped: %q", text)
	}
	if strings.Join(rec.langs, "+") != "eng+ara" {
		t.Errorf("languages = %v, want [eng ara]", rec.langs)
	}
}

func TestOCRMethod_MaxPages(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"page"}}
	m := NewOCRMethod(
		fakeRasterizer{pages: []image.Image{blankPage(4, 4), blankPage(4, 4), blankPage(4, 4)}},
		rec,
		WithMaxPages(2),
		WithOCRLogger(quietLogger()),
	)

	if _, err := m.Attempt(context.Background(), fakePDF); err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}

func TestOCRMethod_RasterizeError(t *testing.T) {
	m := NewOCRMethod(fakeRasterizer{err: errors.New("no renderer")}, &fakeRecognizer{texts: []string{"x"}})

	if _, err := m.Attempt(context.Background(), fakePDF); err == nil {
		t.Fatal("expected error when rasterization fails")
	}
}

func TestOCRMethod_NoText(t *testing.T) {
	m := NewOCRMethod(fakeRasterizer{}, &fakeRecognizer{texts: []string{"x"}})

	if _, err := m.Attempt(context.Background(), fakePDF); !errors.Is(err, errNoOCRText) {
		t.Fatalf("Attempt() error = %v, want errNoOCRText", err)
	}
}

func TestDownscale(t *testing.T) {
	img := blankPage(400, 100)

	got := downscale(img, 10_000)
	b := got.Bounds()
	if b.Dx()*b.Dy() > 10_000 {
		t.Errorf("downscaled to %dx%d, exceeds pixel cap", b.Dx(), b.Dy())
	}
	if b.Dx() != 200 || b.Dy() != 50 {
		t.Errorf("downscaled to %dx%d, want 200x50", b.Dx(), b.Dy())
	}

	if same := downscale(img, 0); same != img {
		t.Error("zero cap should return the original image")
	}
}
