package jobs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LogDir manages per-job append-only log files, one "{job_id}.log" per job.
type LogDir struct {
	dir string
}

// NewLogDir ensures dir exists and returns the manager.
func NewLogDir(dir string) (*LogDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &LogDir{dir: dir}, nil
}

// Path returns the log file path for a job id.
func (l *LogDir) Path(jobID string) string {
	return filepath.Join(l.dir, jobID+".log")
}

// Append writes one line to the job's log, adding the trailing newline when
// missing. Each call opens and closes the file so readers always see a
// consistent tail.
func (l *LogDir) Append(jobID, line string) error {
	f, err := os.OpenFile(l.Path(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open job log: %w", err)
	}
	defer f.Close()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// Read returns the log content from byte offset since onward, plus the new
// offset to poll from. A missing log file reads as empty at offset zero.
func (l *LogDir) Read(jobID string, since int64) (string, int64, error) {
	f, err := os.Open(l.Path(jobID))
	if os.IsNotExist(err) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("open job log: %w", err)
	}
	defer f.Close()

	if since < 0 {
		since = 0
	}
	if _, err := f.Seek(since, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("seek job log: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", 0, fmt.Errorf("read job log: %w", err)
	}
	return string(data), since + int64(len(data)), nil
}
