// Package logsink records inbound API calls without holding up the response.
// Writes are at-most-once: a failed write is logged and dropped.
package logsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/metrics"
)

const (
	ModeDirect = "direct"
	ModeStream = "stream"

	DefaultStream       = "cary:api_logs"
	DefaultMaxLen       = 100000
	DefaultWriteTimeout = 5 * time.Second
)

// Sink accepts API call log entries.
type Sink interface {
	LogAPICall(ctx context.Context, apiName, prompt string, user logstore.UserDetails, requestData map[string]any)
	Close() error
}

// Options configures a sink.
type Options struct {
	Mode         string
	RedisURL     string
	Stream       string
	MaxLen       int64
	Collection   string
	WriteTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Stream == "" {
		o.Stream = DefaultStream
	}
	if o.MaxLen <= 0 {
		o.MaxLen = DefaultMaxLen
	}
	if o.Collection == "" {
		o.Collection = logstore.DefaultCollection
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
}

// New builds the configured sink. Stream mode is used only when Redis answers
// PING; otherwise it falls back to writing directly to the store.
func New(ctx context.Context, opts Options, store logstore.Store, logger *zap.Logger) Sink {
	opts.setDefaults()
	if opts.Mode != ModeStream {
		return NewDirectSink(store, opts, logger)
	}

	rdb, err := dial(ctx, opts.RedisURL, opts.WriteTimeout)
	if err != nil {
		logger.Warn("redis unavailable, writing API logs directly", zap.Error(err))
		return NewDirectSink(store, opts, logger)
	}
	s := NewStreamSink(rdb, store, opts, logger)
	if err := s.Start(ctx); err != nil {
		logger.Warn("log stream consumer failed to start, writing API logs directly", zap.Error(err))
		_ = rdb.Close()
		return NewDirectSink(store, opts, logger)
	}
	logger.Info("API logs routed through redis stream", zap.String("stream", opts.Stream))
	return s
}

func dial(ctx context.Context, url string, timeout time.Duration) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func newRecord(apiName, prompt string, user logstore.UserDetails, requestData map[string]any) logstore.Record {
	return logstore.Record{
		ID:          uuid.NewString(),
		APIName:     apiName,
		Prompt:      prompt,
		UserDetails: user,
		RequestData: requestData,
		Timestamp:   time.Now().UTC(),
	}
}

// DirectSink writes each record to the store on its own goroutine.
type DirectSink struct {
	store      logstore.Store
	collection string
	timeout    time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewDirectSink creates a sink that writes straight to store.
func NewDirectSink(store logstore.Store, opts Options, logger *zap.Logger) *DirectSink {
	opts.setDefaults()
	return &DirectSink{
		store:      store,
		collection: opts.Collection,
		timeout:    opts.WriteTimeout,
		logger:     logger,
	}
}

// LogAPICall returns immediately. The write outlives the request context.
func (s *DirectSink) LogAPICall(ctx context.Context, apiName, prompt string, user logstore.UserDetails, requestData map[string]any) {
	rec := newRecord(apiName, prompt, user, requestData)
	base := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wctx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()
		write(wctx, s.store, s.collection, rec, s.logger)
	}()
}

// Close waits for in-flight writes.
func (s *DirectSink) Close() error {
	s.wg.Wait()
	return nil
}

func write(ctx context.Context, store logstore.Store, collection string, rec logstore.Record, logger *zap.Logger) {
	id, err := store.Add(ctx, collection, rec)
	if err != nil {
		metrics.LogWrites.WithLabelValues("failed").Inc()
		logger.Error("failed to log API call",
			zap.String("api_name", rec.APIName),
			zap.String("collection", collection),
			zap.Error(err))
		return
	}
	metrics.LogWrites.WithLabelValues("ok").Inc()
	logger.Debug("logged API call", zap.String("api_name", rec.APIName), zap.String("id", id))
}
