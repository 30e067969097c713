package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"psurops/internal/blob"
	"psurops/internal/config"
	"psurops/internal/dispatch"
	"psurops/internal/export"
	"psurops/internal/ingest"
	"psurops/internal/metrics"
	"psurops/internal/notify"
	"psurops/internal/record"
	"psurops/internal/storage"
	"psurops/internal/webhooks"
)

// deliveryTimeout bounds one observer delivery.
const deliveryTimeout = 10 * time.Second

// app is the wired object graph shared by commands.
type app struct {
	cfg        *config.Config
	root       string
	logger     *slog.Logger
	store      *storage.Store
	notifier   *notify.Notifier
	metrics    *metrics.Collector
	dispatcher *dispatch.Dispatcher
	closers    []func() error
}

// openApp loads configuration and wires storage, events, exports and the
// dispatcher. With observers set the configured Redis, MQTT and webhook
// sinks are subscribed; unreachable sinks are logged and skipped.
func openApp(ctx context.Context, g *globalOptions, observers bool) (*app, error) {
	cfg, root, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := g.newLogger(cfg, root)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, root: root, logger: logger, metrics: metrics.NewCollector()}
	a.closers = append(a.closers, func() error { closeLog(); return nil })

	backend, err := storage.OpenBackend(ctx, root, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = storage.NewStore(backend, storage.Options{
		Timeout: cfg.Storage.Timeout(),
		Logger:  logger,
		OnHeal:  a.healed,
	})
	a.closers = append(a.closers, a.store.Close)

	var source dispatch.Source
	if cfg.Storage.SeedFile != "" {
		src := a.recordsFile(cfg.Storage.SeedFile)
		source = src
		if err := a.seed(ctx, src); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.notifier = notify.New(notify.Options{
		QueueSize:       cfg.Notify.QueueSize,
		DeliveryTimeout: deliveryTimeout,
		Logger:          logger,
		OnPublish:       a.metrics.ObservePublish,
		OnDrop:          a.metrics.ObserveDrop,
	})
	if observers {
		a.attachObservers(ctx)
	}

	sink, err := blob.Open(ctx, cfg.Export.Blob, root)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open export sink: %w", err)
	}
	exporter := export.NewExporter(sink, export.Options{Gzip: cfg.Export.Gzip, Logger: logger})

	a.dispatcher = dispatch.New(a.store, dispatch.Options{
		Logger:    logger,
		Publisher: a.notifier,
		Exporter:  exporter,
		Source:    source,
		OnCall:    a.metrics.ObserveCall,
	})
	if st, err := a.store.Statistics(ctx, storage.Pure()); err == nil {
		a.metrics.SetRecords(st.Total)
	}
	return a, nil
}

// healed counts a due date corrected on read and tells observers about it.
func (a *app) healed(r *record.Record) {
	a.metrics.ObserveHeal(r)
	if a.dispatcher != nil {
		a.dispatcher.PublishHeal(r)
	}
}

// Close stops event delivery before closing sinks and storage.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// seed loads the seed file into an empty store.
func (a *app) seed(ctx context.Context, src *recordsFile) error {
	existing, err := a.store.All(ctx, storage.Pure())
	if err != nil {
		return fmt.Errorf("check store: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	rs, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("seed from %s: %w", src.path, err)
	}
	n, err := a.store.Reload(ctx, rs)
	if err != nil {
		return fmt.Errorf("seed from %s: %w", src.path, err)
	}
	a.logger.Info("seeded empty store", "path", src.path, "records", n)
	return nil
}

func (a *app) attachObservers(ctx context.Context) {
	nc := a.cfg.Notify
	if nc.Redis.Enabled {
		obs := notify.NewRedisStreamObserver(notify.NewRedisClient(nc.Redis), nc.Redis.Stream, nc.Redis.MaxLen)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := obs.Ping(pingCtx)
		cancel()
		if err != nil {
			a.logger.Warn("redis observer disabled", "addr", nc.Redis.Addr, "error", err)
			_ = obs.Close()
		} else {
			a.notifier.Subscribe("redis:"+nc.Redis.Stream, obs)
			a.closers = append(a.closers, obs.Close)
		}
	}
	if nc.MQTT.Enabled {
		client, err := notify.ConnectMQTT(nc.MQTT)
		if err != nil {
			a.logger.Warn("mqtt observer disabled", "broker", nc.MQTT.Broker, "error", err)
		} else {
			obs := notify.NewMQTTObserver(client, nc.MQTT.Topic, nc.MQTT.QoS)
			a.notifier.Subscribe("mqtt:"+nc.MQTT.Topic, obs)
			a.closers = append(a.closers, obs.Close)
		}
	}
	for _, wc := range nc.Webhooks {
		w := webhooks.FromConfig(wc)
		a.notifier.Subscribe("webhook:"+w.ID, webhooks.NewObserver(w, a.logger))
	}
	if subs := a.notifier.Subscribers(); len(subs) > 0 {
		a.logger.Info("event observers attached", "observers", subs)
	}
}

// recordsFile loads records from a workbook, a CSV file or a JSON snapshot
// (optionally gzipped), chosen by extension. It satisfies dispatch.Source.
type recordsFile struct {
	path    string
	columns string
	sheet   string
	logger  *slog.Logger
}

func (a *app) recordsFile(path string) *recordsFile {
	return newRecordsFile(a.root, path, a.cfg.Ingest, a.logger)
}

func newRecordsFile(root, path string, ic config.IngestConfig, logger *slog.Logger) *recordsFile {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	return &recordsFile{path: resolve(path), columns: resolve(ic.ColumnsFile), sheet: ic.Sheet, logger: logger}
}

func isSnapshot(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".json") || strings.HasSuffix(p, ".json.gz")
}

// Load implements dispatch.Source.
func (f *recordsFile) Load(ctx context.Context) ([]*record.Record, error) {
	if !isSnapshot(f.path) {
		src, err := ingest.NewFileSource(f.path, f.columns, f.sheet, f.logger)
		if err != nil {
			return nil, err
		}
		return src.Load(ctx)
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var r io.Reader = file
	if strings.HasSuffix(strings.ToLower(f.path), ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip snapshot: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	snap, err := export.ReadSnapshot(r)
	if err != nil {
		return nil, err
	}
	f.logger.Info("read snapshot", "path", f.path, "records", len(snap.Records), "generated", snap.Metadata.Generated)
	return snap.Records, nil
}
