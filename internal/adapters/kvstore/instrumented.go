package kvstore

import (
	"context"
	"time"

	"github.com/okian/ladder/pkg/metrics"
)

// Instrumented records latency and error metrics for every call to the
// wrapped store, labelled with backend.
type Instrumented struct {
	next    Store
	backend string
}

// Instrument wraps next so its operations are observable.
func Instrument(next Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

func (s *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, ok, err
}

func (s *Instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.observe("set", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOp(s.backend, op, float64(time.Since(start).Microseconds())/1000.0)
	if err != nil {
		metrics.RecordStorageError(s.backend, op)
	}
}
