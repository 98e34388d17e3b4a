// Package upload stages uploaded images on local disk for one note generation run.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/xhsnote"
)

// RunDirName is the directory under the data dir holding one folder per run.
const RunDirName = "xhs_note"

// ErrTooManyImages is wrapped in a validation error when a request exceeds MaxImages.
var ErrTooManyImages = errors.New("too many images")

// Source is one uploaded file.
type Source struct {
	FileName string
	Reader   io.Reader
}

// Config controls staging and compression.
type Config struct {
	// DataDir is the output root; runs are staged under <DataDir>/xhs_note/<run_id>.
	DataDir   string
	MaxImages int
	// MaxSize is the longest image edge in pixels; 0 keeps the size.
	MaxSize int
	Quality int
	// Parallel bounds concurrent compressions.
	Parallel int
}

// Service stages uploads.
type Service struct {
	cfg Config
}

// NewService creates an upload service.
func NewService(cfg Config) *Service {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Service{cfg: cfg}
}

// Batch is the set of images staged for one run.
type Batch struct {
	RunID  string
	Dir    string
	Images []xhsnote.ImageRef

	cleanupOnce sync.Once
}

// ImageIDs returns the ids of the staged images in upload order.
func (b *Batch) ImageIDs() []string {
	ids := make([]string, len(b.Images))
	for i, img := range b.Images {
		ids[i] = img.ImageID
	}
	return ids
}

// Cleanup removes the run directory. It is safe to call more than once and
// only logs failures.
func (b *Batch) Cleanup() {
	b.cleanupOnce.Do(func() {
		if err := os.RemoveAll(b.Dir); err != nil {
			slog.Warn("failed to clean up run directory", "run_id", b.RunID, "dir", b.Dir, "error", err)
			return
		}
		slog.Debug("run directory cleaned", "run_id", b.RunID, "dir", b.Dir)
	})
}

// NewRunID returns a short run id: the first 8 hex characters of a random uuid.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Stage writes sources to a fresh run directory and compresses them. Image ids
// are img_<index> in upload order. A failed compression keeps the original
// file. On error nothing is left on disk.
func (s *Service) Stage(ctx context.Context, sources []Source) (*Batch, error) {
	if len(sources) == 0 {
		return nil, &agents.ValidationError{Err: agents.ErrNoImages}
	}
	if s.cfg.MaxImages > 0 && len(sources) > s.cfg.MaxImages {
		return nil, &agents.ValidationError{
			Err: fmt.Errorf("%w: got %d, at most %d are supported", ErrTooManyImages, len(sources), s.cfg.MaxImages),
		}
	}

	runID := NewRunID()
	dir, err := filepath.Abs(filepath.Join(s.cfg.DataDir, RunDirName, runID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve run directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create run directory %s", dir)
	}
	batch := &Batch{RunID: runID, Dir: dir, Images: make([]xhsnote.ImageRef, len(sources))}

	for idx, src := range sources {
		imageID := fmt.Sprintf("img_%d", idx)
		name := SanitizeFileName(src.FileName, imageID+".jpg", maxFileNameLength)
		// The image id prefix keeps same-named uploads apart.
		target := filepath.Join(dir, SanitizeFileName(imageID+"_"+name, imageID+".jpg", maxFileNameLength))
		if err := writeFile(target, src.Reader); err != nil {
			batch.Cleanup()
			return nil, errors.Wrapf(err, "failed to save %s", name)
		}
		batch.Images[idx] = xhsnote.ImageRef{ImageID: imageID, FileName: name, LocalPath: target}
	}

	if err := s.compressAll(ctx, batch); err != nil {
		batch.Cleanup()
		return nil, err
	}

	slog.Info("uploads staged", "run_id", runID, "dir", dir, "image_count", len(batch.Images))
	return batch, nil
}

func (s *Service) compressAll(ctx context.Context, batch *Batch) error {
	sem := semaphore.NewWeighted(int64(s.cfg.Parallel))
	var wg sync.WaitGroup
	for i := range batch.Images {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return errors.Wrap(err, "staging cancelled")
		}
		wg.Add(1)
		go func(img *xhsnote.ImageRef) {
			defer wg.Done()
			defer sem.Release(1)

			out, err := CompressImage(img.LocalPath, s.cfg.MaxSize, s.cfg.Quality)
			if err != nil {
				// 压缩失败不中断请求，继续使用原图
				slog.Warn("image compression skipped",
					"run_id", batch.RunID,
					"image_id", img.ImageID,
					"path", img.LocalPath,
					"error", err,
				)
				return
			}
			img.LocalPath = out
		}(&batch.Images[i])
	}
	wg.Wait()
	return nil
}

func writeFile(path string, r io.Reader) error {
	if r == nil {
		return errors.New("empty upload")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
