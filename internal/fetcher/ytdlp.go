package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nattadasu/bilidownloader/internal/shared"
)

// YTDLP shells out to yt-dlp for the actual media transport. Each call gets
// a bounded timeout and a small number of retries for transient failures.
type YTDLP struct {
	path       string
	outputDir  string
	cookieFile string
	resolution int
	timeout    time.Duration
	retries    int
	logger     *log.Logger
}

var _ Fetcher = (*YTDLP)(nil)

// YTDLPOpts contains configuration options for creating a YTDLP fetcher.
type YTDLPOpts struct {
	Path       string
	OutputDir  string
	CookieFile string
	Resolution int
	Timeout    time.Duration
	Retries    int
	Logger     *log.Logger
}

// NewYTDLP creates a yt-dlp backed fetcher.
func NewYTDLP(opts YTDLPOpts) *YTDLP {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Resolution <= 0 {
		opts.Resolution = 1080
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &YTDLP{
		path:       opts.Path,
		outputDir:  opts.OutputDir,
		cookieFile: opts.CookieFile,
		resolution: opts.Resolution,
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		logger:     opts.Logger,
	}
}

// args builds the yt-dlp invocation for one locator. The final filepath is
// printed after post-processing so the fetcher can report file metadata.
func (y *YTDLP) args(locator string) []string {
	args := []string{
		"--no-progress",
		"--no-playlist",
		"--paths", y.outputDir,
		"--output", "%(series)s - E%(episode_number)s [%(id)s].%(ext)s",
		"--format-sort", fmt.Sprintf("res:%d", y.resolution),
		"--referer", "https://www.bilibili.tv/",
		"--print", "after_move:filepath",
		"--no-simulate",
	}
	if y.cookieFile != "" {
		args = append(args, "--cookies", y.cookieFile)
	}
	return append(args, locator)
}

// Fetch downloads one episode. The returned metadata carries the final file
// path reported by yt-dlp.
func (y *YTDLP) Fetch(ctx context.Context, locator string) (*FileMetadata, error) {
	var lastErr error

	for attempt := 0; attempt <= y.retries; attempt++ {
		if attempt > 0 {
			y.logger.Warn("retrying fetch", "locator", locator, "attempt", attempt)
		}

		meta, err := y.runOnce(ctx, locator)
		if err == nil {
			return meta, nil
		}
		lastErr = err

		// Never retry past a canceled cycle.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, lastErr)
}

func (y *YTDLP) runOnce(ctx context.Context, locator string) (*FileMetadata, error) {
	runCtx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, y.path, y.args(locator)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	y.logger.Debug("invoking fetcher", "locator", locator)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%v: %s", err, tail(stderr.String(), 400))
	}

	// The last stdout line is the --print after_move:filepath output.
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if path == "" {
		return nil, fmt.Errorf("fetcher produced no output path")
	}

	meta := &FileMetadata{Path: path}
	if info, err := os.Stat(path); err == nil {
		meta.Size = info.Size()
	}

	return meta, nil
}

// tail returns the last n bytes of s, for compact error reporting.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
