package domain

// Method identifies a text extraction method.
type Method string

const (
	MethodLayout Method = "layout"
	MethodMuPDF  Method = "mupdf"
	MethodPlain  Method = "plain"
	MethodOCR    Method = "ocr"
)

// ExtractionResult is the output of a single extraction method.
type ExtractionResult struct {
	Method Method  `bson:"method" json:"method"`
	Text   string  `bson:"-" json:"-"`
	Score  float64 `bson:"score" json:"score"`
	Chars  int     `bson:"chars" json:"chars"`
	Err    error   `bson:"-" json:"-"`
}

// CanonicalText is the single text body chosen for a document.
type CanonicalText struct {
	Text         string
	Method       Method
	Score        float64
	OCRAttempted bool

	// Candidates holds every attempt in the order it ran, OCR last.
	Candidates []ExtractionResult
}

// UsedOCR reports whether the canonical text came from OCR.
func (c CanonicalText) UsedOCR() bool {
	return c.Method == MethodOCR
}

// Provenance summarises how a canonical text was produced.
type Provenance struct {
	Method       Method             `bson:"method" json:"method"`
	Score        float64            `bson:"score" json:"score"`
	OCRAttempted bool               `bson:"ocr_attempted" json:"ocr_attempted"`
	Candidates   []ExtractionResult `bson:"candidates,omitempty" json:"candidates,omitempty"`
}

// Provenance returns the provenance of c.
func (c CanonicalText) Provenance() Provenance {
	return Provenance{
		Method:       c.Method,
		Score:        c.Score,
		OCRAttempted: c.OCRAttempted,
		Candidates:   c.Candidates,
	}
}
