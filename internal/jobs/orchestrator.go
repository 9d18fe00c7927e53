package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/hash/sha256"
	"github.com/aitoolsdir/harvester/internal/metrics"
)

const (
	// DefaultJobTimeout bounds one background harvest run.
	DefaultJobTimeout = time.Hour
	// SyncRunTimeout bounds a synchronous (blocking) run.
	SyncRunTimeout = 5 * time.Minute
	// syncTailBytes is how much of each stream a synchronous run returns.
	syncTailBytes = 4000
)

// Importer is the slice of the import engine the orchestrator needs.
type Importer interface {
	ImportFile(ctx context.Context, path string) (harvest.ImportStats, error)
}

// Config wires the orchestrator to the scrape subprocess it spawns.
type Config struct {
	// ScrapeCmd is the base argv of the pipeline subprocess, e.g.
	// {"/usr/local/bin/harvester", "scrape", "--config", "/etc/harvester.yaml"}.
	// Override flags are appended to it.
	ScrapeCmd []string
	// OutputCSV is where the subprocess writes its staging artifact.
	OutputCSV string
	// WorkDir is the subprocess working directory. Empty means inherit.
	WorkDir string
	// JobTimeout bounds one background run. Zero means DefaultJobTimeout.
	JobTimeout time.Duration
	// Topic, when set, receives a completion event per finished job.
	Topic string
	// ArchivePrefix, when set with a blob store, is where finished staging
	// artifacts are copied, e.g. "jobs".
	ArchivePrefix string
}

// Orchestrator owns the background job lifecycle: queued, running, then
// completed or failed. It consumes the queue and runs one job at a time.
type Orchestrator struct {
	cfg       Config
	queue     harvest.Queue
	fallback  harvest.Queue
	status    harvest.StatusStore
	logs      *LogDir
	importer  Importer
	ids       harvest.IDGenerator
	clock     harvest.Clock
	publisher harvest.Publisher
	blobs     harvest.BlobStore
	logger    *zap.Logger
}

// Options carries the optional collaborators.
type Options struct {
	// Fallback receives jobs the primary queue cannot take.
	Fallback  harvest.Queue
	Publisher harvest.Publisher
	Blobs     harvest.BlobStore
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	queue harvest.Queue,
	status harvest.StatusStore,
	logs *LogDir,
	importer Importer,
	ids harvest.IDGenerator,
	clock harvest.Clock,
	opts Options,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if len(cfg.ScrapeCmd) == 0 {
		return nil, fmt.Errorf("scrape command is required")
	}
	if cfg.OutputCSV == "" {
		return nil, fmt.Errorf("output csv path is required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		cfg:       cfg,
		queue:     queue,
		fallback:  opts.Fallback,
		status:    status,
		logs:      logs,
		importer:  importer,
		ids:       ids,
		clock:     clock,
		publisher: opts.Publisher,
		blobs:     opts.Blobs,
		logger:    logger,
	}, nil
}

// Submit records a queued job and enqueues it, falling back to the secondary
// queue when the primary cannot take it. It returns the job id for polling.
func (o *Orchestrator) Submit(ctx context.Context, overrides harvest.JobOverrides) (string, error) {
	id, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	jobID := "scrape_" + id
	if err := o.status.Set(ctx, jobID, harvest.JobStatus{State: harvest.JobStateQueued}); err != nil {
		return "", fmt.Errorf("record queued status: %w", err)
	}

	req := harvest.JobRequest{JobID: jobID, Overrides: overrides, Submitted: o.clock.Now()}
	if err := o.queue.Enqueue(ctx, req); err != nil {
		if o.fallback == nil {
			return "", fmt.Errorf("enqueue job: %w", err)
		}
		o.logger.Warn("primary queue refused job, using fallback", zap.String("job_id", jobID), zap.Error(err))
		if err := o.fallback.Enqueue(ctx, req); err != nil {
			return "", fmt.Errorf("enqueue job on fallback: %w", err)
		}
	}
	return jobID, nil
}

// Run blocks, consuming queue items until the context finishes.
func (o *Orchestrator) Run(ctx context.Context) {
	o.consume(ctx, o.queue)
}

// RunFallback drains the fallback queue. It returns immediately when no
// fallback queue is configured.
func (o *Orchestrator) RunFallback(ctx context.Context) {
	if o.fallback == nil {
		return
	}
	o.consume(ctx, o.fallback)
}

func (o *Orchestrator) consume(ctx context.Context, queue harvest.Queue) {
	for {
		req, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		o.logger.Debug("dequeued job", zap.String("job_id", req.JobID))
		o.Execute(ctx, req)
	}
}

// Execute runs one job to a terminal state. Any panic inside the run is
// caught and recorded as a failure.
func (o *Orchestrator) Execute(ctx context.Context, req harvest.JobRequest) {
	defer func() {
		if r := recover(); r != nil {
			o.logLine(req.JobID, fmt.Sprintf("[exception] %v", r))
			o.setStatus(ctx, req.JobID, harvest.JobStateFailed, map[string]any{"error": fmt.Sprintf("%v", r)})
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	o.setStatus(ctx, req.JobID, harvest.JobStateRunning, map[string]any{"output_csv": o.cfg.OutputCSV})

	args := appendOverrideFlags(o.cfg.ScrapeCmd, req.Overrides)
	o.logLine(req.JobID, fmt.Sprintf("[info] Starting scraper: %s", args[0]))
	o.logLine(req.JobID, fmt.Sprintf("[info] Parameters: %+v", req.Overrides))
	for _, note := range overrideNotes(req.Overrides) {
		o.logLine(req.JobID, note)
	}

	code, err := o.runStreaming(jobCtx, req.JobID, args)
	if err != nil {
		o.logLine(req.JobID, fmt.Sprintf("[error] %v", err))
		o.setStatus(ctx, req.JobID, harvest.JobStateFailed, map[string]any{"error": err.Error()})
		return
	}
	o.logLine(req.JobID, fmt.Sprintf("[info] Subprocess completed with return code: %d", code))
	if code != 0 {
		o.logLine(req.JobID, fmt.Sprintf("[error] Scraper exited with code %d", code))
		o.setStatus(ctx, req.JobID, harvest.JobStateFailed, map[string]any{"returncode": code})
		return
	}

	info, err := os.Stat(o.cfg.OutputCSV)
	if err != nil {
		o.logLine(req.JobID, fmt.Sprintf("[error] Output CSV not found: %s", o.cfg.OutputCSV))
		o.setStatus(ctx, req.JobID, harvest.JobStateFailed, map[string]any{"error": "no_output"})
		return
	}
	o.logLine(req.JobID, fmt.Sprintf("[info] Output CSV created: %s (%d bytes)", o.cfg.OutputCSV, info.Size()))

	o.logLine(req.JobID, "[info] Starting import...")
	stats, err := o.importer.ImportFile(jobCtx, o.cfg.OutputCSV)
	if err != nil {
		o.logLine(req.JobID, fmt.Sprintf("[error] Import failed: %v", err))
		o.setStatus(ctx, req.JobID, harvest.JobStateFailed, map[string]any{"error": err.Error()})
		return
	}
	o.logLine(req.JobID, fmt.Sprintf("[info] Import completed: created=%d updated=%d skipped=%d",
		stats.Created, stats.Updated, stats.Skipped))

	meta := map[string]any{
		"stats":      stats,
		"output_csv": o.cfg.OutputCSV,
		"file_size":  info.Size(),
	}
	if uri, digest := o.archiveArtifact(jobCtx, req.JobID); uri != "" {
		meta["artifact"] = uri
		meta["artifact_sha256"] = digest
	}
	o.setStatus(ctx, req.JobID, harvest.JobStateCompleted, meta)
}

// runStreaming starts the subprocess and streams its combined output into
// the job log, one line at a time.
func (o *Orchestrator) runStreaming(ctx context.Context, jobID string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = o.cfg.WorkDir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return 0, fmt.Errorf("start scraper: %w", err)
	}
	o.logLine(jobID, fmt.Sprintf("[info] Subprocess started (PID: %d)", cmd.Process.Pid))

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			o.logLine(jobID, scanner.Text())
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-done
	pr.Close()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("scraper wait: %w", err)
	}
	return 0, nil
}

// SyncResult is returned by a blocking run.
type SyncResult struct {
	Stdout      string              `json:"scraper_stdout"`
	Stderr      string              `json:"scraper_stderr"`
	ImportStats harvest.ImportStats `json:"import_stats"`
	OutputFile  string              `json:"output_file"`
	FileSize    int64               `json:"file_size"`
}

// RunSync runs the scrape subprocess in the foreground with a five minute
// budget and imports the result, returning the tails of both streams.
func (o *Orchestrator) RunSync(ctx context.Context, overrides harvest.JobOverrides) (SyncResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, SyncRunTimeout)
	defer cancel()

	args := appendOverrideFlags(o.cfg.ScrapeCmd, overrides)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = o.cfg.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return SyncResult{}, fmt.Errorf("scraper timed out after %s", SyncRunTimeout)
	}
	if err != nil {
		detail := stderr.String()
		if detail == "" {
			detail = stdout.String()
		}
		return SyncResult{}, fmt.Errorf("scraper failed: %w: %s", err, tail(detail, syncTailBytes))
	}

	stats, err := o.importer.ImportFile(ctx, o.cfg.OutputCSV)
	if err != nil {
		return SyncResult{}, fmt.Errorf("import staged csv: %w", err)
	}
	var size int64
	if info, statErr := os.Stat(o.cfg.OutputCSV); statErr == nil {
		size = info.Size()
	}
	return SyncResult{
		Stdout:      tail(stdout.String(), syncTailBytes),
		Stderr:      tail(stderr.String(), syncTailBytes),
		ImportStats: stats,
		OutputFile:  o.cfg.OutputCSV,
		FileSize:    size,
	}, nil
}

// ReadLog returns the job's status plus the log chunk after offset since.
func (o *Orchestrator) ReadLog(ctx context.Context, jobID string, since int64) (harvest.JobStatus, string, int64, error) {
	status, err := o.status.Get(ctx, jobID)
	if err != nil {
		return harvest.JobStatus{}, "", 0, err
	}
	chunk, offset, err := o.logs.Read(jobID, since)
	if err != nil {
		return status, "", 0, err
	}
	return status, chunk, offset, nil
}

// Status returns the stored status for a job id.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (harvest.JobStatus, error) {
	return o.status.Get(ctx, jobID)
}

func (o *Orchestrator) setStatus(ctx context.Context, jobID string, state harvest.JobState, meta map[string]any) {
	if err := o.status.Set(ctx, jobID, harvest.JobStatus{State: state, Meta: meta}); err != nil {
		o.logger.Error("status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
	if state == harvest.JobStateCompleted || state == harvest.JobStateFailed {
		metrics.ObserveJob(string(state))
		o.publishEvent(ctx, jobID, state, meta)
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, jobID string, state harvest.JobState, meta map[string]any) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload := map[string]any{"job_id": jobID, "status": state, "meta": meta}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("completion event publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// archiveArtifact copies the staging CSV to the blob store and returns the
// artifact URI plus the digest of the archived bytes.
func (o *Orchestrator) archiveArtifact(ctx context.Context, jobID string) (string, string) {
	if o.blobs == nil || o.cfg.ArchivePrefix == "" {
		return "", ""
	}
	data, err := os.ReadFile(o.cfg.OutputCSV)
	if err != nil {
		o.logger.Warn("artifact read failed", zap.String("job_id", jobID), zap.Error(err))
		return "", ""
	}
	uri, err := o.blobs.PutObject(ctx, o.cfg.ArchivePrefix+"/"+jobID+".csv", "text/csv", data)
	if err != nil {
		o.logger.Warn("artifact archive failed", zap.String("job_id", jobID), zap.Error(err))
		return "", ""
	}
	digest := sha256.Sum(data)
	o.logLine(jobID, fmt.Sprintf("[info] Artifact archived: %s (sha256 %s)", uri, digest))
	return uri, digest
}

func (o *Orchestrator) logLine(jobID, line string) {
	if err := o.logs.Append(jobID, line); err != nil {
		o.logger.Warn("job log append failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func appendOverrideFlags(base []string, ov harvest.JobOverrides) []string {
	args := append([]string(nil), base...)
	if ov.PerSource != nil {
		args = append(args, "--per-source", strconv.Itoa(*ov.PerSource))
	}
	if ov.RateLimit != nil {
		args = append(args, "--rate-limit", strconv.FormatFloat(*ov.RateLimit, 'f', -1, 64))
	}
	if ov.Timeout != nil {
		args = append(args, "--timeout", strconv.Itoa(*ov.Timeout))
	}
	return args
}

func overrideNotes(ov harvest.JobOverrides) []string {
	var notes []string
	if ov.PerSource != nil {
		notes = append(notes, fmt.Sprintf("[info] Overriding source limits to %d per source", *ov.PerSource))
	}
	if ov.RateLimit != nil {
		notes = append(notes, fmt.Sprintf("[info] Overriding rate limit to %g reqs/sec", *ov.RateLimit))
	}
	if ov.Timeout != nil {
		notes = append(notes, fmt.Sprintf("[info] Overriding timeout to %d seconds", *ov.Timeout))
	}
	return notes
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
