// Package maintenance runs periodic sweeps that retry compressions for
// profiles left over threshold.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/theracowch/cowch/pkg/logger"
)

const (
	DefaultExpr        = "*/10 * * * *"
	defaultTick        = time.Minute
	defaultConcurrency = 4
)

// UserLister enumerates users with stored data.
type UserLister interface {
	Users(ctx context.Context) []string
}

// Compactor compresses a user's profile when it is due.
type Compactor interface {
	MaybeCompress(ctx context.Context, userID string) bool
}

type SweepResult struct {
	Users      int
	Compressed int
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Scheduler checks its cron expression every tick and sweeps all users
// when it is due.
type Scheduler struct {
	expr        string
	gron        *gronx.Gronx
	users       UserLister
	compactor   Compactor
	now         func() time.Time
	tick        time.Duration
	concurrency int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

func NewScheduler(expr string, users UserLister, compactor Compactor, opts ...Option) (*Scheduler, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultExpr
	}
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid maintenance cron expression %q", expr)
	}
	if users == nil || compactor == nil {
		return nil, fmt.Errorf("maintenance scheduler needs a user lister and a compactor")
	}
	s := &Scheduler{
		expr:        expr,
		gron:        g,
		users:       users,
		compactor:   compactor,
		now:         time.Now,
		tick:        defaultTick,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the background loop. Calling it twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	next, err := gronx.NextTickAfter(s.expr, s.now(), false)
	fields := map[string]interface{}{"expr": s.expr}
	if err == nil {
		fields["next_run"] = next.Format(time.RFC3339)
	}
	logger.InfoCF("maintenance", "Maintenance scheduler started", fields)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.InfoC("maintenance", "Maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickOnce(ctx)
		}
	}
}

// tickOnce runs a sweep when the expression is due for the current minute
// and no sweep has run in that minute yet.
func (s *Scheduler) tickOnce(ctx context.Context) bool {
	minute := s.now().Truncate(time.Minute)

	s.mu.Lock()
	already := minute.Equal(s.lastRun)
	s.mu.Unlock()
	if already {
		return false
	}

	due, err := s.gron.IsDue(s.expr, minute)
	if err != nil {
		logger.WarnCF("maintenance", "Cron evaluation failed", map[string]interface{}{
			"expr":  s.expr,
			"error": err.Error(),
		})
		return false
	}
	if !due {
		return false
	}

	s.mu.Lock()
	s.lastRun = minute
	s.mu.Unlock()

	s.RunOnce(ctx)
	return true
}

// RunOnce sweeps every stored user, compressing those over threshold.
func (s *Scheduler) RunOnce(ctx context.Context) SweepResult {
	users := s.users.Users(ctx)
	var compressed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, u := range users {
		u := u
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if s.compactor.MaybeCompress(gctx, u) {
				atomic.AddInt64(&compressed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{Users: len(users), Compressed: int(compressed)}
	logger.InfoCF("maintenance", "Maintenance sweep finished", map[string]interface{}{
		"users":      result.Users,
		"compressed": result.Compressed,
	})
	return result
}
