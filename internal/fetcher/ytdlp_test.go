package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nattadasu/bilidownloader/internal/shared"
)

// writeStub writes an executable shell script standing in for yt-dlp.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "ytdlp-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write stub: %v", err)
	}
	return path
}

func TestYTDLPArgs(t *testing.T) {
	y := NewYTDLP(YTDLPOpts{
		Path:       "yt-dlp",
		OutputDir:  "/media/out",
		CookieFile: "/home/user/cookies.txt",
		Resolution: 720,
	})

	args := strings.Join(y.args("https://www.bilibili.tv/en/play/1/2"), " ")

	for _, want := range []string{
		"--paths /media/out",
		"--cookies /home/user/cookies.txt",
		"--format-sort res:720",
		"--print after_move:filepath",
		"https://www.bilibili.tv/en/play/1/2",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("expected args to contain %q, got %q", want, args)
		}
	}
}

func TestYTDLPFetch(t *testing.T) {
	t.Run("success reports file metadata", func(t *testing.T) {
		dir := t.TempDir()
		out := filepath.Join(dir, "episode.mkv")
		if err := os.WriteFile(out, []byte("data"), 0644); err != nil {
			t.Fatalf("failed to create output file: %v", err)
		}

		stub := writeStub(t, "echo "+out)
		y := NewYTDLP(YTDLPOpts{Path: stub, OutputDir: dir})

		meta, err := y.Fetch(context.Background(), "https://example.test/ep")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if meta.Path != out {
			t.Errorf("expected path %s, got %s", out, meta.Path)
		}
		if meta.Size != 4 {
			t.Errorf("expected size 4, got %d", meta.Size)
		}
	})

	t.Run("failure wraps ErrFetchFailed", func(t *testing.T) {
		stub := writeStub(t, "echo 'boom' >&2; exit 1")
		y := NewYTDLP(YTDLPOpts{Path: stub, Retries: 1})

		_, err := y.Fetch(context.Background(), "https://example.test/ep")
		if !errors.Is(err, shared.ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("expected stderr in error, got %v", err)
		}
	})

	t.Run("timeout terminates the fetch", func(t *testing.T) {
		stub := writeStub(t, "sleep 10")
		y := NewYTDLP(YTDLPOpts{Path: stub, Timeout: 50 * time.Millisecond})

		start := time.Now()
		_, err := y.Fetch(context.Background(), "https://example.test/ep")
		if !errors.Is(err, shared.ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("fetch did not respect timeout")
		}
	})

	t.Run("canceled context stops retries", func(t *testing.T) {
		stub := writeStub(t, "exit 1")
		y := NewYTDLP(YTDLPOpts{Path: stub, Retries: 100})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := y.Fetch(ctx, "https://example.test/ep")
		if !errors.Is(err, shared.ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
	})
}

func TestTail(t *testing.T) {
	if got := tail("short", 10); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	long := strings.Repeat("x", 50) + "end"
	if got := tail(long, 10); !strings.HasSuffix(got, "end") || !strings.HasPrefix(got, "...") {
		t.Errorf("unexpected tail %q", got)
	}
}
