package gateway

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
)

// SimulatedConfig tunes the in-process cluster.
type SimulatedConfig struct {
	// Latency is the fixed round-trip of every job. Defaults to 1.2s.
	Latency time.Duration

	// RatePerSecond and Burst bound job admission. A zero rate disables the
	// limiter.
	RatePerSecond float64
	Burst         int

	// Capacity caps jobs running at once. Defaults to 256.
	Capacity int

	// DedupWindow is how long a finished job ID is remembered so that a
	// resubmission does not run it again. Defaults to 5 minutes.
	DedupWindow time.Duration

	Logger *log.Logger
}

type pending struct {
	handle   Handle
	job      Job
	done     chan struct{}
	result   Result
	claimed  bool
	finished time.Time
}

// Simulated is an in-process cluster that owns the hidden board.
type Simulated struct {
	board   *board.Board
	cfg     SimulatedConfig
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	jobs     map[uuid.UUID]*pending
	handles  map[Handle]*pending
	inflight int

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewSimulated starts a cluster over b.
func NewSimulated(b *board.Board, cfg SimulatedConfig) *Simulated {
	if cfg.Latency == 0 {
		cfg.Latency = 1200 * time.Millisecond
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags)
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Simulated{
		board:   b,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		jobs:    make(map[uuid.UUID]*pending),
		handles: make(map[Handle]*pending),
		stop:    make(chan struct{}),
	}
}

// Submit admits job and returns immediately. Resubmitting a known job ID
// returns the original handle without running the job again.
func (s *Simulated) Submit(ctx context.Context, job Job) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := job.validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stop:
		return "", ErrUnavailable
	default:
	}

	s.pruneLocked(time.Now())
	if p, ok := s.jobs[job.ID]; ok {
		s.logger.Printf("duplicate_submit job_id=%s handle=%s", job.ID, p.handle)
		return p.handle, nil
	}
	if s.inflight >= s.cfg.Capacity {
		return "", ErrUnavailable
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return "", ErrRateLimited
	}

	p := &pending{
		handle: Handle(uuid.New().String()),
		job:    job,
		done:   make(chan struct{}),
	}
	s.jobs[job.ID] = p
	s.handles[p.handle] = p
	s.inflight++

	s.wg.Add(1)
	go s.run(p)
	return p.handle, nil
}

func (s *Simulated) run(p *pending) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.Latency)
	defer timer.Stop()

	var res Result
	select {
	case <-timer.C:
		res = s.compute(p.job)
	case <-s.stop:
		res = Result{JobID: p.job.ID, Kind: p.job.Kind, Failure: "cluster shutting down"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	p.result = res
	p.finished = time.Now()
	close(p.done)
	if p.claimed {
		// The awaiting side already gave up on this handle.
		s.logger.Printf("late_result_dropped job_id=%s kind=%s", p.job.ID, p.job.Kind)
	}
}

func (s *Simulated) compute(job Job) Result {
	res := Result{JobID: job.ID, Kind: job.Kind}

	var in Input
	if err := Open(job.Requester, job.EncryptedInput, &in); err != nil {
		res.Failure = err.Error()
		return res
	}
	if !grid.InBounds(in.Target) {
		res.Failure = "target out of bounds"
		return res
	}

	out := Output{Target: in.Target}
	switch job.Kind {
	case KindExplore, KindDig:
		t := s.board.Tile(in.Target)
		out.Tile = &t
	case KindBury:
		if in.Amount == 0 {
			res.Failure = "bury amount must be positive"
			return res
		}
	}

	payload, err := Seal(job.Requester, out)
	if err != nil {
		res.Failure = err.Error()
		return res
	}
	res.Payload = payload
	return res
}

// Await blocks until the result for h is ready, timeout elapses or ctx is
// done. On timeout the handle is abandoned.
func (s *Simulated) Await(ctx context.Context, h Handle, timeout time.Duration) (Result, error) {
	s.mu.Lock()
	p, ok := s.handles[h]
	s.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownHandle
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-p.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.claimed {
			return Result{}, ErrUnknownHandle
		}
		s.claimLocked(p)
		return p.result, nil
	case <-expired:
		if res, ok := s.abandon(p); ok {
			return res, nil
		}
		return Result{}, ErrTimedOut
	case <-ctx.Done():
		if res, ok := s.abandon(p); ok {
			return res, nil
		}
		return Result{}, ctx.Err()
	}
}

// abandon gives up on p. If the result raced in and nobody has claimed it
// yet, it is handed back instead.
func (s *Simulated) abandon(p *pending) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.claimed {
		return Result{}, false
	}
	select {
	case <-p.done:
		s.claimLocked(p)
		return p.result, true
	default:
	}
	s.claimLocked(p)
	s.logger.Printf("handle_abandoned job_id=%s kind=%s", p.job.ID, p.job.Kind)
	return Result{}, false
}

func (s *Simulated) claimLocked(p *pending) {
	p.claimed = true
	delete(s.handles, p.handle)
}

// pruneLocked forgets finished, claimed jobs older than the dedup window.
func (s *Simulated) pruneLocked(now time.Time) {
	for id, p := range s.jobs {
		if p.claimed && !p.finished.IsZero() && now.Sub(p.finished) > s.cfg.DedupWindow {
			delete(s.jobs, id)
		}
	}
}

// InFlight returns the number of jobs still computing.
func (s *Simulated) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

func (s *Simulated) Check(ctx context.Context) error {
	select {
	case <-s.stop:
		return ErrUnavailable
	default:
	}
	if s.InFlight() >= s.cfg.Capacity {
		return ErrUnavailable
	}
	return nil
}

// Close stops admitting jobs and waits for running ones to finish.
func (s *Simulated) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

var _ Gateway = (*Simulated)(nil)
