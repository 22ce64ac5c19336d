package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nattadasu/bilidownloader/internal/fetcher"
	"github.com/nattadasu/bilidownloader/internal/schedule"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"github.com/nattadasu/bilidownloader/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	source     tasks.ScheduleSource
	fetcher    fetcher.Fetcher
}

// RunnerOpts contains configuration options for creating a Runner. DB, Source
// and Fetcher are injectable for tests; when nil they are built from the
// config on demand.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
	Source     tasks.ScheduleSource
	Fetcher    fetcher.Fetcher
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		source:     opts.Source,
		fetcher:    opts.Fetcher,
	}
}

// setConfig replaces the runner's configuration once the persistent
// --config flag has been resolved.
func (r *Runner) setConfig(config *shared.Config) {
	r.config = config
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, watchlistCommand, scheduleCommand, runCommand, downloadCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// database returns the injected connection or opens one from the config. The
// cleanup func is a no-op for injected connections.
func (r *Runner) database() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	return db, func() { db.Close() }, nil
}

// scheduleClient builds a timeline client from the config, loading the
// cookie file when one is configured.
func (r *Runner) scheduleClient() (*schedule.Client, error) {
	var cookies []*http.Cookie
	if path := r.config.Platform.CookieFile; path != "" {
		loaded, err := shared.LoadCookieFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load cookie file: %w", err)
		}
		cookies = loaded
	}

	return schedule.NewClient(schedule.ClientOpts{
		BaseURL:    r.config.Platform.APIURL,
		UserAgent:  r.config.Platform.UserAgent,
		Cookies:    cookies,
		HTTPClient: r.httpClient,
		Retries:    r.config.Cycle.ScheduleRetries,
		Backoff:    r.config.Cycle.ScheduleBackoff(),
		Logger:     r.logger,
	}), nil
}

// episodeFetcher returns the injected fetcher or builds the yt-dlp wrapper
// from the config.
func (r *Runner) episodeFetcher() fetcher.Fetcher {
	if r.fetcher != nil {
		return r.fetcher
	}
	return fetcher.NewYTDLP(fetcher.YTDLPOpts{
		Path:       r.config.Fetcher.YTDLPPath,
		OutputDir:  r.config.Fetcher.OutputDir,
		CookieFile: r.config.Platform.CookieFile,
		Resolution: r.config.Fetcher.Resolution,
		Timeout:    r.config.Fetcher.FetchTimeout(),
		Retries:    r.config.Fetcher.Retries,
		Logger:     r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
