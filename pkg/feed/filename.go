package feed

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// FileNameFromURL derives a local .pdf file name from a document URL.
// URLs without a usable base name get a timestamped name.
func FileNameFromURL(rawURL string, now time.Time) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "download_" + now.Format("20060102_150405") + ".pdf"
	}
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + ".pdf"
}
