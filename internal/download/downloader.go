package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
)

const copyChunkSize = 8 * 1024

// Progress receives byte counts as the transfer advances. total is -1 when
// the server does not announce a length.
type Progress func(written, total int64)

// Downloader fetches remote files onto the local incoming directory.
type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(logging.String(logging.FieldComponent, "download")),
	}
}

// WithClient overrides the HTTP client, used by tests.
func (d *Downloader) WithClient(client *http.Client) *Downloader {
	d.client = client
	return d
}

// Fetch streams url into dest. An existing non-empty dest is kept as-is and
// no request is made. Partial files never land at dest: the transfer goes to
// a .part sibling that is renamed only on success and removed on any failure.
func (d *Downloader) Fetch(ctx context.Context, url, dest string, progress Progress) error {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		d.logger.Debug("download skipped, file exists",
			logging.String("path", dest),
			logging.Int64("size", info.Size()))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(nil, "download", "mkdir", filepath.Dir(dest), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "download", "request", url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return services.Wrap(services.ErrTimeout, "download", "fetch", url, err)
		}
		return services.Wrap(services.ErrTransient, "download", "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "download", "fetch",
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url), nil)
	}

	partial := dest + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return services.Wrap(nil, "download", "create", partial, err)
	}

	written, copyErr := d.copy(file, resp.Body, resp.ContentLength, progress)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partial)
		if errors.Is(copyErr, context.DeadlineExceeded) || os.IsTimeout(copyErr) {
			return services.Wrap(services.ErrTimeout, "download", "copy", url, copyErr)
		}
		return services.Wrap(services.ErrTransient, "download", "copy", url, copyErr)
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return services.Wrap(nil, "download", "rename", dest, err)
	}

	d.logger.Info("download complete",
		logging.String("path", dest),
		logging.Int64("bytes", written))
	return nil
}

func (d *Downloader) copy(dst io.Writer, src io.Reader, total int64, progress Progress) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
