package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePDF(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePDF([]byte("%PDF-1.7\n...")))
	assert.ErrorIs(t, ValidatePDF([]byte("<!DOCTYPE html>")), ErrNotPDF)
	assert.ErrorIs(t, ValidatePDF([]byte("%PD")), ErrNotPDF)
	assert.ErrorIs(t, ValidatePDF(nil), ErrNotPDF)
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "transport", ErrorKind(fmt.Errorf("download: %w", &TransportError{URL: "u", Err: cause})))
	assert.Equal(t, "http_status", ErrorKind(&HTTPStatusError{URL: "u", StatusCode: http.StatusBadGateway}))
	assert.Equal(t, "not_pdf", ErrorKind(fmt.Errorf("download: %w", ErrNotPDF)))
	assert.Equal(t, "no_text", ErrorKind(ErrNoText))
	assert.Equal(t, "filesystem", ErrorKind(&FilesystemError{Op: "write", Path: "/tmp/x", Err: cause}))
	assert.Equal(t, "canceled", ErrorKind(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, "error", ErrorKind(cause))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	cause := errors.New("no such host")
	te := &TransportError{URL: "https://sris.sr/", Err: cause}
	assert.ErrorIs(t, te, cause)
	assert.Contains(t, te.Error(), "https://sris.sr/")

	se := &HTTPStatusError{URL: "https://sris.sr/x.pdf", StatusCode: http.StatusNotAcceptable}
	assert.Contains(t, se.Error(), "406 Not Acceptable")

	fe := &FilesystemError{Op: "rename", Path: "/cache/a.pdf", Err: cause}
	assert.ErrorIs(t, fe, cause)
	assert.Equal(t, "rename /cache/a.pdf: no such host", fe.Error())
}

func TestSiteConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, srisSite.Validate())
	assert.NoError(t, dnaSite.Validate())

	assert.ErrorIs(t, SiteConfig{Name: "x"}.Validate(), ErrNoSeeds)
	assert.Error(t, SiteConfig{Seeds: []string{"https://sris.sr/"}}.Validate())
	assert.Error(t, SiteConfig{Name: "x", Seeds: []string{"https://sris.sr/"}, Scope: "host"}.Validate())
	assert.Error(t, SiteConfig{Name: "x", Seeds: []string{"https://sris.sr/"}, Scope: ScopePathPrefix}.Validate())
	assert.Error(t, SiteConfig{Name: "x", Seeds: []string{"sris.sr"}}.Validate())
}

func TestSiteConfig_Defaults(t *testing.T) {
	t.Parallel()

	site := SiteConfig{Name: "Nationale Assemblee"}
	assert.Equal(t, "Nationale_Assemblee", site.CacheDir())
	assert.Equal(t, "Nationale Assemblee", site.Label())

	site.OutputDir = "../../etc"
	assert.Equal(t, "etc", site.CacheDir())

	site.SourceLabel = "DNA"
	assert.Equal(t, "DNA", site.Label())
}

func TestFetchResponse_IsHTML(t *testing.T) {
	t.Parallel()

	assert.True(t, FetchResponse{Headers: http.Header{}}.IsHTML())
	assert.True(t, FetchResponse{Headers: http.Header{"Content-Type": {"text/html; charset=utf-8"}}}.IsHTML())
	assert.True(t, FetchResponse{Headers: http.Header{"Content-Type": {"application/xhtml+xml"}}}.IsHTML())
	assert.False(t, FetchResponse{Headers: http.Header{"Content-Type": {"application/pdf"}}}.IsHTML())
	assert.False(t, FetchResponse{Headers: http.Header{"Content-Type": {"image/png"}}}.IsHTML())
}
