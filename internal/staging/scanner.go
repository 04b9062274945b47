// Package staging discovers files under the library roots and turns them
// into import and deletion tasks.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
)

// ConfigSource yields the current configuration.
type ConfigSource interface {
	Get() *config.Config
}

// Triggerer wakes a pipeline stage.
type Triggerer interface {
	Trigger(stage.Name) error
}

// Result summarizes one staging pass.
type Result struct {
	Scanned  int          `json:"scanned"`
	Enqueued int          `json:"enqueued"`
	Held     int          `json:"held"`
	Deleted  int          `json:"deleted"`
	Stages   []stage.Name `json:"stages,omitempty"`
}

// Scanner walks the library roots and enqueues work for changed files.
type Scanner struct {
	store   *library.Store
	cfg     ConfigSource
	trigger Triggerer
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewScanner constructs a Scanner. trigger may be nil when no pipeline runs.
func NewScanner(store *library.Store, cfg ConfigSource, trigger Triggerer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		store:   store,
		cfg:     cfg,
		trigger: trigger,
		logger:  logging.NewComponentLogger(logger, "staging"),
		now:     time.Now,
	}
}

type pass struct {
	result  Result
	stages  map[stage.Name]struct{}
	missing []string
}

func newPass() *pass {
	return &pass{stages: make(map[stage.Name]struct{})}
}

// Scan walks every configured library root. Files younger than the minimum
// age are held for a later pass. Recorded files that vanished from a root
// that is still readable get a deletion task.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get()
	minAge := time.Duration(cfg.Workflow.MinFileAgeSeconds) * time.Second
	p := newPass()
	var errs []error

	for _, root := range cfg.Paths.LibraryRoots {
		if err := ctx.Err(); err != nil {
			return p.finish(), err
		}
		if err := s.scanRoot(ctx, root, minAge, p); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.finishPass(ctx, p); err != nil {
		errs = append(errs, err)
	}
	result := p.finish()
	s.logger.Info("staging scan finished",
		logging.Int("scanned", result.Scanned),
		logging.Int("enqueued", result.Enqueued),
		logging.Int("held", result.Held),
		logging.Int("deleted", result.Deleted),
		logging.String(logging.FieldEventType, "staging_scan"),
	)
	return result, errors.Join(errs...)
}

func (s *Scanner) scanRoot(ctx context.Context, root string, minAge time.Duration, p *pass) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		// An unmounted root must not turn the whole library into deletions.
		s.logger.Warn("library root unavailable; skipping",
			logging.String("root", root),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_root_unavailable"),
			logging.String(logging.FieldErrorHint, "check that the library volume is mounted"),
		)
		return nil
	}

	seen := make(map[string]struct{})
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("staging walk error", logging.String("path", path), logging.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		fileType, ok := Classify(path)
		if !ok {
			return nil
		}
		seen[path] = struct{}{}
		return s.stageFile(ctx, root, path, fileType, d, minAge, p)
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", root, walkErr)
	}

	recorded, err := s.store.FilesUnder(ctx, root)
	if err != nil {
		return err
	}
	for _, file := range recorded {
		if _, ok := seen[file.Path]; ok {
			continue
		}
		if err := s.stageDeletion(ctx, file, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) stageFile(ctx context.Context, root, path, fileType string, d fs.DirEntry, minAge time.Duration, p *pass) error {
	p.result.Scanned++
	info, err := d.Info()
	if err != nil {
		return nil
	}
	if minAge > 0 && s.now().Sub(info.ModTime()) < minAge {
		p.result.Held++
		return nil
	}
	changed, err := s.store.RecordFile(ctx, library.FileRecord{
		Path:    path,
		Root:    root,
		Type:    fileType,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		SeenAt:  s.now(),
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	name, ok := stage.ImportStageFor(fileType)
	if !ok {
		return nil
	}
	if _, err := s.store.EnqueueTask(ctx, library.TaskSpec{
		Stage:   name,
		Domain:  stage.DomainFile,
		Subtype: fileType,
		Ref:     path,
	}); err != nil {
		return err
	}
	p.result.Enqueued++
	p.stages[name] = struct{}{}
	return nil
}

func (s *Scanner) stageDeletion(ctx context.Context, file library.FileRecord, p *pass) error {
	if _, err := s.store.EnqueueTask(ctx, library.TaskSpec{
		Stage:   stage.Deletion,
		Domain:  stage.DomainFile,
		Subtype: file.Type,
		Ref:     file.Path,
	}); err != nil {
		return err
	}
	if err := s.store.ForgetFile(ctx, file.Path); err != nil {
		return err
	}
	p.missing = append(p.missing, file.Path)
	p.result.Deleted++
	p.stages[stage.Deletion] = struct{}{}
	return nil
}

// ScanPath stages a single file or directory, typically after a filesystem
// event. A path that no longer exists is staged for deletion together with
// every recorded file below it.
func (s *Scanner) ScanPath(ctx context.Context, path string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get()
	path = filepath.Clean(path)
	root, ok := rootOf(cfg.Paths.LibraryRoots, path)
	if !ok {
		return Result{}, fmt.Errorf("%s is not under a library root: %w", path, services.ErrValidation)
	}
	minAge := time.Duration(cfg.Workflow.MinFileAgeSeconds) * time.Second
	p := newPass()

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.stageVanished(ctx, root, path, p); err != nil {
			return p.finish(), err
		}
	case err != nil:
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		walkErr := filepath.WalkDir(path, func(child string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if child != path && skipDir(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			fileType, ok := Classify(child)
			if !ok {
				return nil
			}
			return s.stageFile(ctx, root, child, fileType, d, minAge, p)
		})
		if walkErr != nil {
			return p.finish(), walkErr
		}
	default:
		if fileType, ok := Classify(path); ok {
			if err := s.stageFile(ctx, root, path, fileType, fs.FileInfoToDirEntry(info), minAge, p); err != nil {
				return p.finish(), err
			}
		}
	}

	if err := s.finishPass(ctx, p); err != nil {
		return p.finish(), err
	}
	return p.finish(), nil
}

func (s *Scanner) stageVanished(ctx context.Context, root, path string, p *pass) error {
	if record, err := s.store.GetFile(ctx, path); err != nil {
		return err
	} else if record != nil {
		return s.stageDeletion(ctx, *record, p)
	}
	recorded, err := s.store.FilesUnder(ctx, root)
	if err != nil {
		return err
	}
	prefix := strings.TrimSuffix(path, string(filepath.Separator)) + string(filepath.Separator)
	for _, file := range recorded {
		if strings.HasPrefix(file.Path, prefix) {
			if err := s.stageDeletion(ctx, file, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scanner) finishPass(ctx context.Context, p *pass) error {
	var err error
	if len(p.missing) > 0 {
		_, err = s.store.MarkMissing(ctx, p.missing)
	}
	if s.trigger != nil {
		for _, name := range p.stageList() {
			if trigErr := s.trigger.Trigger(name); trigErr != nil {
				s.logger.Warn("trigger after staging failed", logging.String(logging.FieldStage, string(name)), logging.Error(trigErr))
			}
		}
	}
	return err
}

func (p *pass) stageList() []stage.Name {
	names := make([]stage.Name, 0, len(p.stages))
	for name := range p.stages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (p *pass) finish() Result {
	result := p.result
	result.Stages = p.stageList()
	return result
}

func rootOf(roots []string, path string) (string, bool) {
	best := ""
	for _, root := range roots {
		root = filepath.Clean(root)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best, best != ""
}
