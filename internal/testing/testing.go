// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/nattadasu/bilidownloader/internal/fetcher"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
	// Requests records every request seen, newest last.
	Requests []*http.Request
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Requests = append(m.Requests, req)
	return m.response, m.err
}

// JSONResponse builds a 200 response carrying the given body.
func JSONResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// RoundTripFunc adapts a function to http.RoundTripper, for tests that need
// to vary responses per request.
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockFetcher is a test double for [fetcher.Fetcher]. FailOn lists locators
// whose fetch should fail; everything else succeeds.
type MockFetcher struct {
	FailOn  map[string]bool
	Fetched []string
}

func (m *MockFetcher) Fetch(ctx context.Context, locator string) (*fetcher.FileMetadata, error) {
	m.Fetched = append(m.Fetched, locator)
	if m.FailOn[locator] {
		return nil, errors.New("simulated fetch failure")
	}
	return &fetcher.FileMetadata{Path: "/tmp/" + locator}, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
