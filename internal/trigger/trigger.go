package trigger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "taskplan/pkg/logx"
)

// Job is one planning run.
type Job func(ctx context.Context) error

// ErrBusy is returned by RunNow while another run is in progress.
var ErrBusy = errors.New("run already in progress")

// Config is the schedule a Service runs on.
type Config struct {
	Schedule string
	Timezone string
	// Timeout bounds one run. Zero disables it.
	Timeout time.Duration
}

// RunInfo describes the last finished run.
type RunInfo struct {
	Started  time.Time
	Duration time.Duration
	Err      string
	Trigger  string // "schedule" | "manual"
}

// Service triggers Job according to Config.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	job    Job
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	cfg    Config
	spec   ParsedSpec
	entry  cron.EntryID

	// runMu serializes runs; TryLock failures mean "skip this tick".
	runMu sync.Mutex
	// base is cancelled by Stop so in-flight runs see shutdown.
	base   context.Context
	cancel context.CancelFunc

	lastMu sync.Mutex
	last   RunInfo
}

func New(job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		job: job,
		log: log.With(logx.String("comp", "trigger")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks a schedule and timezone without installing them.
func (s *Service) Validate(cfg Config) error {
	_, _, err := s.compile(cfg)
	return err
}

func (s *Service) compile(cfg Config) (cron.Schedule, ParsedSpec, error) {
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, spec, err
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return nil, spec, err
	}
	if spec.Kind == SpecInterval {
		return cron.Every(spec.Every), spec, nil
	}
	sched, err := s.parser.Parse(spec.Cron)
	if err != nil {
		return nil, spec, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
	}
	return sched, spec, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// Start installs cfg and starts triggering. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := s.installLocked(cfg); err != nil {
		s.cancel()
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("trigger started",
		logx.String("schedule", s.spec.String()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.nextLocked()),
	)
	return nil
}

// Apply swaps the schedule at runtime. An in-flight run is not interrupted.
func (s *Service) Apply(cfg Config) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		s.cfg = cfg
		return nil
	}
	if cfg == s.cfg {
		return nil
	}
	<-s.c.Stop().Done()
	if err := s.installLocked(cfg); err != nil {
		return err
	}
	s.c.Start()
	s.log.Info("trigger rescheduled",
		logx.String("schedule", s.spec.String()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.nextLocked()),
	)
	return nil
}

func (s *Service) installLocked(cfg Config) error {
	sched, spec, err := s.compile(cfg)
	if err != nil {
		return err
	}
	loc, _ := loadLocation(cfg.Timezone)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.entry = s.c.Schedule(sched, cron.FuncJob(func() { s.fire("schedule") }))
	s.cfg, s.spec, s.loc = cfg, spec, loc
	return nil
}

// Next returns the next scheduled run, or zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Service) nextLocked() time.Time {
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop stops triggering, cancels an in-flight run and waits for it (or ctx).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("trigger stopped")
}

// RunNow runs the job immediately on the caller's goroutine. It returns
// ErrBusy when a run is already in progress.
func (s *Service) RunNow(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()
	return s.run(ctx, "manual")
}

func (s *Service) fire(trigger string) {
	if !s.runMu.TryLock() {
		s.log.Warn("run skipped; previous run still in progress", logx.String("trigger", trigger))
		return
	}
	defer s.runMu.Unlock()

	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = s.run(ctx, trigger)
}

func (s *Service) run(ctx context.Context, trigger string) (err error) {
	s.mu.Lock()
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("run panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		info := RunInfo{Started: start, Duration: time.Since(start), Trigger: trigger}
		if err != nil {
			info.Err = err.Error()
			s.log.Warn("run failed", logx.String("trigger", trigger), logx.Duration("took", info.Duration), logx.Err(err))
		} else {
			s.log.Info("run finished", logx.String("trigger", trigger), logx.Duration("took", info.Duration))
		}
		s.lastMu.Lock()
		s.last = info
		s.lastMu.Unlock()
	}()

	if s.job == nil {
		return errors.New("no job configured")
	}
	return s.job(ctx)
}

// LastRun reports the most recently finished run.
func (s *Service) LastRun() (RunInfo, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last, !s.last.Started.IsZero()
}
