package logsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/metrics"
)

const (
	consumerGroup = "cary-log-writers"
	readCount     = 50
	readBlock     = 2 * time.Second
)

// StreamSink publishes records to a Redis stream. A consumer goroutine reads
// the stream and persists each record to the store. Entries are acknowledged
// as soon as they are read, so a failed store write is not retried.
type StreamSink struct {
	rdb        *redis.Client
	store      logstore.Store
	stream     string
	maxLen     int64
	collection string
	timeout    time.Duration
	consumer   string
	logger     *zap.Logger

	pending sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStreamSink creates a stream sink. Call Start to run the consumer.
func NewStreamSink(rdb *redis.Client, store logstore.Store, opts Options, logger *zap.Logger) *StreamSink {
	opts.setDefaults()
	return &StreamSink{
		rdb:        rdb,
		store:      store,
		stream:     opts.Stream,
		maxLen:     opts.MaxLen,
		collection: opts.Collection,
		timeout:    opts.WriteTimeout,
		consumer:   "writer-" + uuid.NewString()[:8],
		logger:     logger,
	}
}

// Start creates the consumer group if needed and begins draining the stream.
func (s *StreamSink) Start(ctx context.Context) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

func (s *StreamSink) ensureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group on %s: %w", s.stream, err)
	}
	return nil
}

// LogAPICall publishes the record without blocking the caller.
func (s *StreamSink) LogAPICall(ctx context.Context, apiName, prompt string, user logstore.UserDetails, requestData map[string]any) {
	rec := newRecord(apiName, prompt, user, requestData)
	base := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		pctx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()
		if err := s.publish(pctx, rec); err != nil {
			metrics.LogWrites.WithLabelValues("failed").Inc()
			s.logger.Error("failed to queue API call log", zap.String("api_name", apiName), zap.Error(err))
			return
		}
		metrics.LogWrites.WithLabelValues("queued").Inc()
	}()
}

func (s *StreamSink) publish(ctx context.Context, rec logstore.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.stream, err)
	}
	return nil
}

func (s *StreamSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := s.drainOnce(ctx, readBlock); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("log stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// drainOnce reads one batch of new entries and persists it. A negative
// block returns immediately when the stream is empty.
func (s *StreamSink) drainOnce(ctx context.Context, block time.Duration) (int, error) {
	return s.drain(ctx, ">", block)
}

// drainPending re-reads entries already delivered to this consumer but never
// acknowledged, such as a batch cut off by shutdown.
func (s *StreamSink) drainPending(ctx context.Context) (int, error) {
	return s.drain(ctx, "0", -1)
}

// drain reads from id onwards. Only the read is cancellable: once a batch is
// delivered it is acknowledged and written even if ctx ends meanwhile.
func (s *StreamSink) drain(ctx context.Context, id string, block time.Duration) (int, error) {
	results, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: s.consumer,
		Streams:  []string{s.stream, id},
		Count:    readCount,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	wctx := context.WithoutCancel(ctx)
	n := 0
	for _, r := range results {
		for _, msg := range r.Messages {
			if err := s.rdb.XAck(wctx, s.stream, consumerGroup, msg.ID).Err(); err != nil {
				s.logger.Warn("ack failed", zap.String("id", msg.ID), zap.Error(err))
			}
			n++
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var rec logstore.Record
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				s.logger.Warn("dropping malformed log entry", zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			tctx, cancel := context.WithTimeout(wctx, s.timeout)
			write(tctx, s.store, s.collection, rec, s.logger)
			cancel()
		}
	}
	return n, nil
}

// Close flushes queued entries, stops the consumer and closes Redis.
func (s *StreamSink) Close() error {
	s.pending.Wait()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		for _, drain := range []func() (int, error){
			func() (int, error) { return s.drainPending(ctx) },
			func() (int, error) { return s.drainOnce(ctx, -1) },
		} {
			for {
				n, err := drain()
				if err != nil || n == 0 {
					break
				}
			}
		}
		cancel()
	}
	return s.rdb.Close()
}
