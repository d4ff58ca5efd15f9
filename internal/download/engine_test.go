package download

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hayate-dl/hayate/internal/utils"
)

// rangeServer serves data with byte-range support and records every Range
// header it sees.
type rangeServer struct {
	*httptest.Server
	mu     sync.Mutex
	ranges []string
}

func newRangeServer(data []byte) *rangeServer {
	rs := &rangeServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rh := r.Header.Get("Range"); rh != "" {
			rs.mu.Lock()
			rs.ranges = append(rs.ranges, rh)
			rs.mu.Unlock()
		}
		http.ServeContent(w, r, "file.bin", time.Unix(0, 0), bytes.NewReader(data))
	}))
	return rs
}

func (rs *rangeServer) requestedRanges() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

func testData(n int64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 253)
	}
	return data
}

func runConfig(outputPath string, fileSize int64, connections int, url string) Config {
	return Config{
		OutputPath:  outputPath,
		FileSize:    fileSize,
		Connections: connections,
		PickURL:     func() string { return url },
		Client:      utils.NewHayateHTTPClient(utils.HTTPClientConfig{}),
	}
}

func TestRunMultiConnection(t *testing.T) {
	fileSize := 2*utils.MinMultiConnSize + 1234
	data := testData(fileSize)
	server := newRangeServer(data)
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	if err := Run(context.Background(), runConfig(outputPath, fileSize, 4, server.URL)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded file does not match source data")
	}
	if NewStore(outputPath).Exists() {
		t.Error("metadata record still present after completion")
	}
	if got := len(server.requestedRanges()); got != 4 {
		t.Errorf("expected 4 ranged requests, got %d", got)
	}
}

func TestRunSmallFileSingleConnection(t *testing.T) {
	// Below the minimum multi-connection size everything goes through one
	// connection regardless of the requested count.
	fileSize := int64(10000)
	data := testData(fileSize)
	server := newRangeServer(data)
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	if err := Run(context.Background(), runConfig(outputPath, fileSize, 8, server.URL)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded file does not match source data")
	}
	if got := len(server.requestedRanges()); got != 1 {
		t.Errorf("expected 1 ranged request, got %d", got)
	}
}

func TestRunResume(t *testing.T) {
	fileSize := 2*utils.MinMultiConnSize + 500
	data := testData(fileSize)
	server := newRangeServer(data)
	defer server.Close()

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.bin")

	// Fake an interrupted earlier run: chunks 0-9 (a leading run of the
	// first connection's range) and interior chunk 100 are already on disk
	// and recorded in a saved bitmap.
	done := []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 100}
	meta := NewMetadata(uint32(totalChunks(fileSize)))
	partial, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("creating partial file: %v", err)
	}
	for _, idx := range done {
		start := int64(idx) * utils.ChunkSize
		end := min(start+utils.ChunkSize, fileSize)
		if _, err := partial.WriteAt(data[start:end], start); err != nil {
			t.Fatalf("seeding chunk %d: %v", idx, err)
		}
		meta.MarkDone(idx)
	}
	if err := partial.Close(); err != nil {
		t.Fatalf("closing partial file: %v", err)
	}
	if err := NewStore(outputPath).Save(meta); err != nil {
		t.Fatalf("saving bitmap: %v", err)
	}

	if err := Run(context.Background(), runConfig(outputPath, fileSize, 2, server.URL)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("resumed file does not match source data")
	}
	if NewStore(outputPath).Exists() {
		t.Error("metadata record still present after completion")
	}
	// The leading run of finished chunks must not be re-requested: no range
	// may start at byte 0.
	for _, rh := range server.requestedRanges() {
		if strings.HasPrefix(rh, "bytes=0-") {
			t.Errorf("finished leading run re-requested: %s", rh)
		}
	}
}

func TestRunResumeFullyDone(t *testing.T) {
	// A bitmap with every bit set means nothing left to fetch: no network
	// requests, record deleted, success.
	fileSize := int64(10000)
	data := testData(fileSize)
	server := newRangeServer(data)
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		t.Fatalf("seeding output: %v", err)
	}
	meta := NewMetadata(3)
	for i := uint32(0); i < 3; i++ {
		meta.MarkDone(i)
	}
	if err := NewStore(outputPath).Save(meta); err != nil {
		t.Fatalf("saving bitmap: %v", err)
	}

	if err := Run(context.Background(), runConfig(outputPath, fileSize, 2, server.URL)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if NewStore(outputPath).Exists() {
		t.Error("metadata record still present after completion")
	}
	if got := len(server.requestedRanges()); got != 0 {
		t.Errorf("expected no ranged requests, got %d", got)
	}
}

func TestRunServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	err := Run(context.Background(), runConfig(outputPath, 10000, 1, server.URL))
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunRejectsUnknownSize(t *testing.T) {
	if err := Run(context.Background(), runConfig("out.bin", 0, 1, "http://localhost")); err == nil {
		t.Error("expected error for zero file size")
	}
}

func TestProbe(t *testing.T) {
	fileSize := int64(10000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			http.Error(w, "HEAD only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", fileSize))
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Disposition", `attachment; filename="monthly report.pdf"`)
	}))
	defer server.Close()

	client := utils.NewHayateHTTPClient(utils.HTTPClientConfig{})
	info, err := Probe(context.Background(), server.URL, client)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Size != fileSize {
		t.Errorf("size = %d, want %d", info.Size, fileSize)
	}
	if !info.RangeSupport {
		t.Error("range support not detected")
	}
	if info.Name != "monthly report.pdf" {
		t.Errorf("name = %q, want %q", info.Name, "monthly report.pdf")
	}
}

func TestProbeMissingContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := utils.NewHayateHTTPClient(utils.HTTPClientConfig{})
	if _, err := Probe(context.Background(), server.URL, client); err == nil {
		t.Error("expected error for missing Content-Length")
	}
}

func TestProbeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := utils.NewHayateHTTPClient(utils.HTTPClientConfig{})
	if _, err := Probe(context.Background(), server.URL, client); err == nil {
		t.Error("expected error for 404 response")
	}
}
