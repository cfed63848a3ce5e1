package index

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"impactmap/internal/lang"
	"impactmap/internal/logging"
	"impactmap/internal/progress"
)

// BuildStats summarizes one index build
type BuildStats struct {
	TotalFiles  int
	ParsedFiles int
	FailedFiles int
}

// Builder walks a workspace, parses every supported source file in parallel,
// and folds the results into a CodeIndex sequentially.
type Builder struct {
	registry   *lang.Registry
	cache      *ParseCache
	logger     *logging.Logger
	ignoreDirs map[string]bool
	workers    int
}

// NewBuilder creates a builder. workers <= 0 means one worker per CPU.
func NewBuilder(registry *lang.Registry, cache *ParseCache, logger *logging.Logger, ignoreDirs []string, workers int) *Builder {
	ignore := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = true
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{
		registry:   registry,
		cache:      cache,
		logger:     logger,
		ignoreDirs: ignore,
		workers:    workers,
	}
}

// CollectSourceFiles enumerates the supported source files under the
// workspace in sorted order, skipping hidden and ignored directories.
func (b *Builder) CollectSourceFiles(workspace string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != workspace && (strings.HasPrefix(name, ".") || b.ignoreDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if b.registry.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Build indexes the whole workspace. Parse failures are logged and skipped;
// they never abort the build. Cancellation is honored at file granularity.
func (b *Builder) Build(ctx context.Context, workspace string) (*CodeIndex, *BuildStats, error) {
	files, err := b.CollectSourceFiles(workspace)
	if err != nil {
		return nil, nil, err
	}

	counter := progress.NewCounter(len(files))
	reporter := progress.NewReporter(counter, progress.TerminalWriter())
	reporter.Start()
	defer reporter.Stop()

	// one slot per file keeps the fold order independent of worker timing
	parsed := make([]*lang.ParsedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := b.parseOne(file)
			if err != nil {
				b.logger.Warn("Failed to parse file", map[string]interface{}{
					"file":  file,
					"error": err.Error(),
				})
			} else {
				parsed[i] = pf
			}
			counter.Increment()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	stats := &BuildStats{TotalFiles: len(files)}
	ci := NewCodeIndex()
	var ok []*lang.ParsedFile
	for _, pf := range parsed {
		if pf == nil {
			stats.FailedFiles++
			continue
		}
		stats.ParsedFiles++
		ok = append(ok, pf)
	}
	ci.Fold(ok)

	return ci, stats, nil
}

func (b *Builder) parseOne(path string) (*lang.ParsedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return b.cache.GetOrParse(path, info.ModTime().UnixNano(), info.Size(), func() (*lang.ParsedFile, error) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		parser, ok := b.registry.ForFile(path)
		if !ok {
			return nil, os.ErrInvalid
		}
		return parser.ParseFile(content, path)
	})
}
