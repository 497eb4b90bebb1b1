package assembly

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultJobPattern names generated job files.
const DefaultJobPattern = "pynome_work_%05d.txt"

// ErrMalformedJob is returned for job files that do not hold exactly a
// taxonomy ID line and an assembly name line.
var ErrMalformedJob = errors.New("assembly: malformed job file")

// Job identifies one assembly to index. Jobs are handed to independent
// processes through small text files so a batch can run in parallel.
type Job struct {
	TaxonomyID   string
	AssemblyName string
}

// ReadJob parses a job file.
func ReadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("assembly: read job %s: %w", path, err)
	}
	var parts []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) != 2 {
		return Job{}, fmt.Errorf("%w: %s has %d lines, want 2", ErrMalformedJob, path, len(parts))
	}
	return Job{TaxonomyID: parts[0], AssemblyName: parts[1]}, nil
}

// WriteJobs writes one file per job into dir, numbering them with pattern
// (a printf format taking the index). It returns the written paths.
func WriteJobs(dir, pattern string, jobs []Job) ([]string, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultJobPattern
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assembly: ensure %s: %w", dir, err)
	}
	paths := make([]string, 0, len(jobs))
	for i, job := range jobs {
		path := filepath.Join(dir, fmt.Sprintf(pattern, i))
		body := job.TaxonomyID + "\n" + job.AssemblyName + "\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return paths, fmt.Errorf("assembly: write job %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
