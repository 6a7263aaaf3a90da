package history

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type ArchiverConfig struct {
	Instance string
	Interval time.Duration
	MaxBatch int
}

// Archiver periodically copies new Recorder entries to object storage.
type Archiver struct {
	source  *Recorder
	store   storage.ObjectStore
	cfg     ArchiverConfig
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	lastSeq int64
}

func NewArchiver(source *Recorder, store storage.ObjectStore, cfg ArchiverConfig, logger *slog.Logger) (*Archiver, error) {
	if source == nil {
		return nil, fmt.Errorf("history recorder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Instance == "" {
		cfg.Instance = "default"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1000
	}
	return &Archiver{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: observability.LoggerOrDiscard(logger).With(slog.String("component", "history_archiver")),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run flushes on every tick until ctx is done, then makes a final flush.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := a.Flush(flushCtx); err != nil {
				a.logger.Error("final history flush failed", slog.Any("error", err))
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logger.Error("history flush failed", slog.Any("error", err))
			}
		}
	}
}

// Flush writes every pending entry in batches of at most MaxBatch and returns
// the number archived. Entries already evicted from the ring are reported in
// the log and skipped.
func (a *Archiver) Flush(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	archived := 0
	for {
		entries, dropped := a.source.Since(a.lastSeq, a.cfg.MaxBatch)
		if dropped > 0 {
			a.logger.Warn("history entries evicted before archiving", slog.Int64("dropped", dropped))
		}
		if len(entries) == 0 {
			return archived, nil
		}

		key, err := a.writeBatch(ctx, entries)
		observability.ObserveHistoryArchive(len(entries), err)
		if err != nil {
			return archived, err
		}
		a.lastSeq = entries[len(entries)-1].Seq
		archived += len(entries)
		a.logger.Info("archived history batch", slog.String("key", key), slog.Int("entries", len(entries)))

		if len(entries) < a.cfg.MaxBatch {
			return archived, nil
		}
	}
}

func (a *Archiver) writeBatch(ctx context.Context, entries []Entry) (string, error) {
	data, err := EncodeParquet(entries)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildHistoryFilePath(a.cfg.Instance, a.now(), entries[0].Seq, entries[len(entries)-1].Seq)
	if err != nil {
		return "", err
	}
	opts := storage.PutOptions{
		ContentType: parquetContentType,
		Metadata: map[string]string{
			"instance":  a.cfg.Instance,
			"entries":   strconv.Itoa(len(entries)),
			"first-seq": strconv.FormatInt(entries[0].Seq, 10),
			"last-seq":  strconv.FormatInt(entries[len(entries)-1].Seq, 10),
		},
	}
	if _, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("put history archive: %w", err)
	}
	return key, nil
}

// ListArchives returns archived history objects for instance, newest first.
func ListArchives(ctx context.Context, store storage.ObjectStore, instance string, day time.Time) ([]storage.ObjectInfo, error) {
	prefix, err := storage.HistoryListPrefix(instance, day)
	if err != nil {
		return nil, err
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

func ReadArchive(ctx context.Context, store storage.ObjectStore, key string) ([]Entry, error) {
	if err := storage.ValidateHistoryKey(key); err != nil {
		return nil, err
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read history archive %q: %w", key, err)
	}
	return DecodeParquet(data)
}
