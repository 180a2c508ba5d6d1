package filtering

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
)

const ExcludeFileName = "exclude_file"

type excludeFileFilter struct {
	path   string
	logger *zap.Logger
}

// NewExcludeFile creates a filter that removes postings listed in a file.
// Each non-empty line holds a posting URL or a job ID; lines starting with
// '#' are ignored.
func NewExcludeFile(path string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &excludeFileFilter{
		path:   strings.TrimSpace(path),
		logger: logger,
	}
}

func (f *excludeFileFilter) Name() string { return ExcludeFileName }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate() error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	if f.path == "" {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	ids, err := ReadExcludeFile(f.path)
	if err != nil {
		return p, Step{}, fmt.Errorf("getting excluded postings from file: %w", err)
	}

	removed := p.Exclude(jobs.PostingIDField, ids)
	if len(removed) > 0 {
		f.logger.Info("excluding postings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_postings", removed),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

// ReadExcludeFile returns the job IDs listed in path. A missing file yields
// no IDs.
func ReadExcludeFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "://") {
			line = jobs.ID(line)
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
