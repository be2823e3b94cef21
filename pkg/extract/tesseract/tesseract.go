// Package tesseract recognizes page images with the Tesseract OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer runs Tesseract on PNG-encoded page images. A gosseract client is
// not safe for concurrent use, so calls are serialized.
type Recognizer struct {
	mu sync.Mutex
}

// NewRecognizer creates a Tesseract recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// Recognize returns the text found in the image.
func (r *Recognizer) Recognize(ctx context.Context, png []byte, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
