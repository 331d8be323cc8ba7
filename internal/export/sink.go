// Package export streams query results into CSV files and, optionally,
// uploads the finished file to object storage.
package export

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/filestore"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/koustreak/sqlscope/internal/query"
)

const contentType = "text/csv"

// exportFileMode is applied to finished exports; CreateTemp alone gives 0600.
const exportFileMode os.FileMode = 0o644

// Streamer runs a read statement row by row.
type Streamer interface {
	Stream(ctx context.Context, sql string, onColumns func([]string) error, onRow func(database.Row) error) (*query.StreamSummary, error)
}

type Config struct {
	Logger   *logger.Logger
	Streamer Streamer

	// Dir is where relative destinations are resolved. Defaults to the
	// working directory.
	Dir string

	// Store, when set, receives every finished export under
	// Prefix + file name in Bucket.
	Store  filestore.Store
	Bucket string
	Prefix string

	// PresignTTL > 0 adds a presigned download URL to uploaded exports.
	PresignTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	}
	if cfg.Streamer == nil {
		return errs.New(errs.ErrKindInvalidInput, "streamer is required")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Store != nil && cfg.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket is required when a store is configured")
	}
	if cfg.PresignTTL < 0 {
		return errs.New(errs.ErrKindInvalidInput, "presign TTL must not be negative")
	}
	return nil
}

// Summary describes a finished export.
type Summary struct {
	Path        string
	RowCount    int
	ColumnCount int
	Columns     []string
	Elapsed     time.Duration

	// Set when the file was uploaded.
	ObjectKey string
	ObjectURL string
}

type Sink struct {
	log *logger.Logger
	cfg Config
}

func NewSink(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{log: cfg.Logger.Component("export"), cfg: cfg}, nil
}

// ExportToFile runs sql and writes its result to dest as CSV: a header row,
// then one record per row. NULL becomes an empty field and BLOBs are base64
// encoded. The file appears at dest only once it is complete.
func (s *Sink) ExportToFile(ctx context.Context, sql, dest string) (*Summary, error) {
	if dest == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "destination file name must not be empty")
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(s.cfg.Dir, dest)
	}
	path, err := filepath.Abs(dest)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid destination path", err)
	}

	var (
		tmp *os.File
		w   *csv.Writer
	)
	// Partial output never outlives a failed export.
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	sum, err := s.cfg.Streamer.Stream(ctx, sql,
		func(cols []string) error {
			f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
			if err != nil {
				return errs.Wrap(errs.ErrKindIOFailure, "failed to create export file", err)
			}
			tmp = f
			if err := f.Chmod(exportFileMode); err != nil {
				return errs.Wrap(errs.ErrKindIOFailure, "failed to set export file mode", err)
			}
			w = csv.NewWriter(f)
			w.UseCRLF = runtime.GOOS == "windows"
			if err := w.Write(cols); err != nil {
				return errs.Wrap(errs.ErrKindIOFailure, "failed to write header", err)
			}
			return nil
		},
		func(r database.Row) error {
			if err := w.Write(record(r.Values())); err != nil {
				return errs.Wrap(errs.ErrKindIOFailure, "failed to write record", err)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	if tmp == nil {
		return nil, errs.New(errs.ErrKindIOFailure, "statement produced no result set")
	}

	if err := finish(tmp, w, path); err != nil {
		return nil, err
	}
	tmp = nil

	out := &Summary{
		Path:        path,
		RowCount:    sum.Rows,
		ColumnCount: len(sum.Columns),
		Columns:     sum.Columns,
		Elapsed:     sum.Elapsed,
	}
	s.log.InfoWith("export written", map[string]interface{}{
		"path":    path,
		"rows":    out.RowCount,
		"columns": out.ColumnCount,
	})

	if s.cfg.Store != nil {
		if err := s.upload(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// finish flushes, syncs and closes tmp, then renames it to path.
func finish(tmp *os.File, w *csv.Writer, path string) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, "failed to flush export", err)
	}
	if err := tmp.Sync(); err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, "failed to sync export", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, "failed to close export", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errs.Wrap(errs.ErrKindIOFailure, "failed to move export into place", err)
	}
	return nil
}

func (s *Sink) upload(ctx context.Context, out *Summary) error {
	key := s.cfg.Prefix + filepath.Base(out.Path)

	if err := s.cfg.Store.EnsureBucket(ctx, s.cfg.Bucket); err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, fmt.Sprintf("export written to %s but bucket is unavailable", out.Path), err)
	}
	info, err := s.cfg.Store.PutFile(ctx, s.cfg.Bucket, key, out.Path, contentType)
	if err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, fmt.Sprintf("export written to %s but upload failed", out.Path), err)
	}
	stat, err := s.cfg.Store.StatObject(ctx, s.cfg.Bucket, info.Key)
	if err != nil {
		return errs.Wrap(errs.ErrKindIOFailure, fmt.Sprintf("export written to %s but the upload could not be verified", out.Path), err)
	}
	if local, err := os.Stat(out.Path); err == nil && local.Size() != stat.Size {
		return errs.Newf(errs.ErrKindIOFailure, "export written to %s but the stored object has %d of %d bytes", out.Path, stat.Size, local.Size())
	}
	out.ObjectKey = info.Key

	if s.cfg.PresignTTL > 0 {
		u, err := s.cfg.Store.PresignGetURL(ctx, s.cfg.Bucket, info.Key, s.cfg.PresignTTL)
		if err != nil {
			s.log.WarnWith("presign failed", err, map[string]interface{}{"key": info.Key})
		} else {
			out.ObjectURL = u
		}
	}

	s.log.InfoWith("export uploaded", map[string]interface{}{
		"bucket": s.cfg.Bucket,
		"key":    info.Key,
		"size":   stat.Size,
		"etag":   info.ETag,
	})
	return nil
}

func record(values []any) []string {
	rec := make([]string, len(values))
	for i, v := range values {
		rec[i] = field(v)
	}
	return rec
}

func field(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}
