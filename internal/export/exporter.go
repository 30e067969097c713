package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"psurops/internal/blob"
	"psurops/internal/record"
	"psurops/internal/slogutil"
)

// Options tunes an Exporter.
type Options struct {
	// Gzip compresses JSON snapshots and appends ".gz" to their name.
	Gzip   bool
	Clock  func() time.Time
	Logger *slog.Logger
}

// Exporter renders records and writes them to a blob store. It satisfies
// dispatch.Exporter.
type Exporter struct {
	store  blob.Store
	gzip   bool
	clock  func() time.Time
	logger *slog.Logger
}

// NewExporter creates a new exporter
func NewExporter(store blob.Store, opts Options) *Exporter {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	return &Exporter{store: store, gzip: opts.Gzip, clock: opts.Clock, logger: opts.Logger}
}

// Export renders rs in format, stores it under name and returns a URL for
// the stored object.
func (e *Exporter) Export(ctx context.Context, format string, rs []*record.Record, name string) (string, error) {
	info, err := e.Write(ctx, format, rs, name)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Write is Export returning the full object description.
func (e *Exporter) Write(ctx context.Context, format string, rs []*record.Record, name string) (blob.Info, error) {
	now := e.clock()
	data, err := Render(format, rs, now)
	if err != nil {
		return blob.Info{}, err
	}
	opts := blob.PutOptions{Metadata: map[string]string{
		"format": format,
		"count":  strconv.Itoa(len(rs)),
	}}
	if format == FormatSnapshot && e.gzip {
		data, err = gzipBytes(data)
		if err != nil {
			return blob.Info{}, err
		}
		name += ".gz"
		opts.ContentType = "application/gzip"
	}

	info, err := e.store.Put(ctx, name, bytes.NewReader(data), opts)
	if err != nil {
		return blob.Info{}, fmt.Errorf("store %s: %w", name, err)
	}
	e.logger.Debug("export written",
		"format", format,
		"records", len(rs),
		"key", info.Key,
		"bytes", info.Size,
		"driver", e.store.Driver(),
	)
	return info, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
