package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"gazette-ingest/pkg/domain"
)

// ErrDownloadFailed is matched by every download failure.
var ErrDownloadFailed = errors.New("download failed")

// DownloadFailedError describes why a document could not be fetched.
type DownloadFailedError struct {
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *DownloadFailedError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: unexpected status code: %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("download %s: failed", e.URL)
	}
}

// Is makes errors.Is(err, ErrDownloadFailed) true.
func (e *DownloadFailedError) Is(target error) bool {
	return target == ErrDownloadFailed
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

var (
	errEmptyBody  = errors.New("response body is empty")
	errNotPDF     = errors.New("content is not a PDF")
	errTooLarge   = errors.New("document exceeds size limit")
	errNoPDFLink  = errors.New("no PDF link found on landing page")
	errEmptyEntry = errors.New("entry has no document URL")
)

var pdfMagic = []byte("%PDF-")

// Download fetches the PDF behind entry. When the entry points to an HTML
// landing page, the best PDF link on that page is followed once.
func (w *Walker) Download(ctx context.Context, entry domain.FeedEntry) (*domain.RawDocument, error) {
	docURL := entry.DocumentURL()
	if docURL == "" {
		return nil, &DownloadFailedError{Err: errEmptyEntry}
	}

	w.logger.Info("downloading document", "url", docURL)
	body, contentType, err := w.fetch(ctx, docURL)
	if err != nil {
		return nil, err
	}

	if isPDF(contentType, body) {
		return w.newDocument(docURL, contentType, body, ""), nil
	}

	if !w.followHTML || !isHTML(contentType, body) {
		return nil, &DownloadFailedError{URL: docURL, ContentType: contentType, Err: fmt.Errorf("%w (content-type %q)", errNotPDF, contentType)}
	}

	pdfURL, err := FindPDFLink(docURL, body)
	if err != nil {
		return nil, &DownloadFailedError{URL: docURL, ContentType: contentType, Err: errNoPDFLink}
	}
	landingTitle := LandingTitle(docURL, body)

	w.logger.Info("resolved PDF from landing page", "page", docURL, "pdf", pdfURL)
	body, contentType, err = w.fetch(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	if !isPDF(contentType, body) {
		return nil, &DownloadFailedError{URL: pdfURL, ContentType: contentType, Err: fmt.Errorf("%w (content-type %q)", errNotPDF, contentType)}
	}

	return w.newDocument(pdfURL, contentType, body, landingTitle), nil
}

func (w *Walker) newDocument(sourceURL, contentType string, body []byte, landingTitle string) *domain.RawDocument {
	now := time.Now()
	doc := &domain.RawDocument{
		SourceURL:    sourceURL,
		FileName:     FileNameFromURL(sourceURL, now),
		ContentType:  contentType,
		Data:         body,
		FetchedAt:    now,
		LandingTitle: landingTitle,
	}
	w.logger.Info("downloaded PDF", "file", doc.FileName, "bytes", len(body))
	return doc
}

// fetch performs a GET and returns the body and content type.
func (w *Walker) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := w.client.GetContext(ctx, rawURL)
	if err != nil {
		return nil, "", &DownloadFailedError{URL: rawURL, Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, "", &DownloadFailedError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBytes+1))
	if err != nil {
		return nil, "", &DownloadFailedError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > w.maxBytes {
		return nil, "", &DownloadFailedError{URL: rawURL, Err: errTooLarge}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, "", &DownloadFailedError{URL: rawURL, Err: errEmptyBody}
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// isPDF reports whether a response is a PDF. Explicit PDF content types are
// trusted; generic ones fall back to sniffing the %PDF- header.
func isPDF(contentType string, body []byte) bool {
	if isPDFContentType(contentType) {
		return true
	}
	switch mediaType(contentType) {
	case "", "application/octet-stream", "binary/octet-stream", "application/download", "application/force-download":
		return bytes.HasPrefix(bytes.TrimLeft(body, "\r\n\t "), pdfMagic)
	default:
		return false
	}
}

func isPDFContentType(contentType string) bool {
	switch mediaType(contentType) {
	case "application/pdf", "application/x-pdf", "application/acrobat":
		return true
	default:
		return false
	}
}

func isHTML(contentType string, body []byte) bool {
	switch mediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return true
	case "":
		return strings.Contains(http.DetectContentType(body), "text/html")
	default:
		return false
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return strings.ToLower(mt)
}

// maxDrainBytes bounds how much of an unread body is discarded so the
// connection can be reused. Larger leftovers just close the connection.
const maxDrainBytes = 64 << 10

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, rc, maxDrainBytes)
	_ = rc.Close()
}
