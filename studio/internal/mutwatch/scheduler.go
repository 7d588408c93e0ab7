package mutwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/tubemaster/studio/mutation"
)

// Source names what caused a rescan request.
type Source string

const (
	SourceMutation Source = "mutation"
	SourceClick    Source = "click"
	SourceNavigate Source = "navigate"
	SourceTick     Source = "tick"
	SourceManual   Source = "manual"
)

// Request asks the page controller to rescan.
type Request struct {
	Source  Source
	Urgency Urgency
	At      time.Time
}

// Config controls the scheduler timing.
type Config struct {
	HighDebounce   time.Duration
	NormalDebounce time.Duration
	// ClickBurst are the delays after an edit click (or navigation) at which
	// a rescan fires.
	ClickBurst []time.Duration
	QuickTick  time.Duration
	QuickTicks int
	SlowTick   time.Duration
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.HighDebounce <= 0 {
		c.HighDebounce = 100 * time.Millisecond
	}
	if c.NormalDebounce <= 0 {
		c.NormalDebounce = 300 * time.Millisecond
	}
	if c.ClickBurst == nil {
		c.ClickBurst = []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	if c.QuickTick <= 0 {
		c.QuickTick = 2 * time.Second
	}
	if c.QuickTicks <= 0 {
		c.QuickTicks = 10
	}
	if c.SlowTick <= 0 {
		c.SlowTick = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler merges every trigger source into one request stream. Submit
// methods are safe from any goroutine; Run owns the timers.
type Scheduler struct {
	cfg Config
	in  chan Request
	out chan Request
}

// NewScheduler returns a Scheduler. Call Run to start it.
func NewScheduler(cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg: cfg,
		in:  make(chan Request, 256),
		out: make(chan Request, 16),
	}
}

// Requests delivers rescan requests.
func (s *Scheduler) Requests() <-chan Request { return s.out }

// Mutations classifies a batch and submits it when it warrants a rescan.
func (s *Scheduler) Mutations(b *mutation.Batch) Urgency {
	u := Classify(b)
	if u != None {
		s.Submit(Request{Source: SourceMutation, Urgency: u})
	}
	return u
}

// Click submits a burst when the click looks like an edit affordance.
func (s *Scheduler) Click(c mutation.Click) bool {
	if !IsEditAffordance(c) {
		return false
	}
	s.Submit(Request{Source: SourceClick, Urgency: High})
	return true
}

// Navigate submits a burst and restarts the quick tick phase.
func (s *Scheduler) Navigate() {
	s.Submit(Request{Source: SourceNavigate, Urgency: High})
}

// Submit queues a request. It never blocks; when the queue is full the
// request is dropped since a rescan is already pending.
func (s *Scheduler) Submit(r Request) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	select {
	case s.in <- r:
	default:
		s.cfg.Logger.Debug("mutwatch: request dropped", "source", r.Source)
	}
}

// Run processes submissions until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
		pending   Request
		deadline  time.Time
		burstC    = make(chan Request, 64)
		ticks     int
		tick      = time.NewTimer(s.cfg.QuickTick)
		cancelled = ctx.Done()
	)
	defer func() {
		tick.Stop()
		if debounce != nil {
			debounce.Stop()
		}
	}()

	arm := func(r Request, d time.Duration) {
		at := time.Now().Add(d)
		if debounceC != nil && pending.Urgency > r.Urgency {
			// A higher-urgency rescan is already due sooner.
			return
		}
		if debounceC != nil && pending.Urgency == High && r.Urgency == High && at.After(deadline) {
			return
		}
		if debounce != nil {
			debounce.Stop()
		}
		pending, deadline = r, at
		debounce = time.NewTimer(d)
		debounceC = debounce.C
	}

	for {
		select {
		case <-cancelled:
			return

		case r := <-s.in:
			switch r.Source {
			case SourceMutation:
				if r.Urgency == High {
					arm(r, s.cfg.HighDebounce)
				} else {
					arm(r, s.cfg.NormalDebounce)
				}
			case SourceClick, SourceNavigate:
				if r.Source == SourceNavigate {
					ticks = 0
					tick.Reset(s.cfg.QuickTick)
				}
				for _, d := range s.cfg.ClickBurst {
					if d <= 0 {
						s.emit(r)
						continue
					}
					time.AfterFunc(d, func() {
						select {
						case burstC <- r:
						case <-cancelled:
						default:
						}
					})
				}
			default:
				s.emit(r)
			}

		case r := <-burstC:
			r.At = time.Now()
			s.emit(r)

		case <-debounceC:
			debounceC = nil
			pending.At = time.Now()
			s.emit(pending)

		case <-tick.C:
			ticks++
			s.emit(Request{Source: SourceTick, Urgency: Normal, At: time.Now()})
			if ticks < s.cfg.QuickTicks {
				tick.Reset(s.cfg.QuickTick)
			} else {
				tick.Reset(s.cfg.SlowTick)
			}
		}
	}
}

func (s *Scheduler) emit(r Request) {
	select {
	case s.out <- r:
	default:
		s.cfg.Logger.Debug("mutwatch: rescan already queued", "source", r.Source)
	}
}
