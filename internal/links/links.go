// Package links builds the visitor-facing URLs that end up in emails.
package links

import (
	"net/url"
	"strconv"
	"strings"
)

// Builder renders absolute URLs under a public origin.
type Builder struct {
	base string
}

func NewBuilder(baseURL string) *Builder {
	return &Builder{base: strings.TrimRight(baseURL, "/")}
}

func (b *Builder) build(path string, q url.Values) string {
	return b.base + path + "?" + q.Encode()
}

// DownloadURL is the primary gated download link.
func (b *Builder) DownloadURL(documentID uint64, hash, email string, requestID uint64) string {
	q := url.Values{}
	q.Set("download", strconv.FormatUint(documentID, 10))
	q.Set("hash", hash)
	q.Set("email", email)
	q.Set("request_id", strconv.FormatUint(requestID, 10))
	return b.build("/", q)
}

// ViewerURL opens the preview page; fileToken lets it fetch the file.
func (b *Builder) ViewerURL(documentID uint64, fileToken, hash, email string, requestID uint64) string {
	q := url.Values{}
	q.Set("viewer", "")
	q.Set("document_id", strconv.FormatUint(documentID, 10))
	q.Set("token", fileToken)
	q.Set("hash", hash)
	q.Set("email", email)
	q.Set("request_id", strconv.FormatUint(requestID, 10))
	return b.build("/", q)
}

// FileURL is the asset URL embedded by the viewer page.  It is relative so
// the page works behind any proxy.
func (b *Builder) FileURL(documentID uint64, fileToken string) string {
	q := url.Values{}
	q.Set("document_id", strconv.FormatUint(documentID, 10))
	q.Set("token", fileToken)
	return "/viewer/file?" + q.Encode()
}

// ActionURL is the emailed one-click admin link.
func (b *Builder) ActionURL(requestID uint64, action, token string) string {
	q := url.Values{}
	q.Set("action-link", "")
	q.Set("rid", strconv.FormatUint(requestID, 10))
	q.Set("token", token)
	q.Set("action", action)
	return b.build("/", q)
}
