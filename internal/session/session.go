package session

import (
	"context"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/probe"
	"github.com/google/uuid"
)

const (
	defaultEventBuffer = 256
	defaultOutBuffer   = 64
)

type Options struct {
	Policy      perf.Policy
	Sampler     perf.SamplerConfig
	InitialMode perf.Mode
	// Device is the host's capabilities, used until the client reports its own.
	Device   perf.DeviceInfo
	Recorder history.Recorder
	Logger   logger.Logger
	// OnMessage sees every message the session emits. It runs on the session
	// goroutine and must not block.
	OnMessage func(Message)
	Clock     func() time.Time
	OutBuffer int
}

// Session runs the adaptive performance controller for one render client.
// All state is owned by the goroutine executing Run.
type Session struct {
	id       string
	opts     Options
	log      logger.Logger
	driver   *Driver
	recorder history.Recorder
	now      func() time.Time

	events   chan Event
	host     chan probe.Reading
	policies chan perf.Policy
	out      chan Message
	done     chan struct{}
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder, _ = history.NewService(history.Config{}, opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OutBuffer <= 0 {
		opts.OutBuffer = defaultOutBuffer
	}

	id := uuid.NewString()
	s := &Session{
		id:       id,
		opts:     opts,
		log:      &sessionLogger{Logger: opts.Logger, id: id},
		driver:   NewDriver(opts.Policy, opts.Sampler, opts.InitialMode, opts.Device),
		recorder: opts.Recorder,
		now:      opts.Clock,
		events:   make(chan Event, defaultEventBuffer),
		host:     make(chan probe.Reading, 1),
		policies: make(chan perf.Policy, 1),
		out:      make(chan Message, opts.OutBuffer),
		done:     make(chan struct{}),
	}

	return s
}

func (s *Session) ID() string {
	return s.id
}

// Out delivers messages for the client. It is closed when Run returns.
func (s *Session) Out() <-chan Message {
	return s.out
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Submit queues a client event.
func (s *Session) Submit(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return errors.New().New(errors.ErrSessionClosed)
	default:
	}

	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return errors.New().New(errors.ErrSessionClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateHost hands the session a fresh host reading. Only the latest
// pending reading is kept.
func (s *Session) UpdateHost(r probe.Reading) {
	replaceLatest(s.host, r)
}

// UpdatePolicy swaps the controller policy. Hysteresis state is kept.
func (s *Session) UpdatePolicy(p perf.Policy) {
	replaceLatest(s.policies, p)
}

func replaceLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Run processes events and evaluation ticks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer close(s.out)
	store := s.driver.Store()
	defer store.Close()

	changes, cancel := store.Subscribe()
	defer cancel()

	timer := time.NewTimer(s.driver.Policy().InitialDelay)
	defer timer.Stop()

	s.log.Info().
		Str("selected", store.Selected().String()).
		Str("active", store.Active().String()).
		Bool("low_end", s.driver.Snapshot().LowEndDevice).
		Msg("Session started")
	s.emit(s.modeMessage(MessageHello, perf.Change{
		From:     store.Active(),
		To:       store.Active(),
		Selected: store.Selected(),
		At:       s.now(),
	}))

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("active", store.Active().String()).Msg("Session ended")
			s.emit(Message{Type: MessageClosed, Session: s.id, At: s.now(), Mode: store.Active(), Selected: store.Selected()})
			return nil

		case ev := <-s.events:
			if trigger := s.driver.Handle(ev, s.now()); trigger != "" {
				s.emitSnapshot(trigger)
			}

		case r := <-s.host:
			s.driver.SetHost(r)

		case p := <-s.policies:
			s.driver.SetPolicy(p)
			s.log.Debug().Dur("cooldown", p.Cooldown).Dur("tick_interval", p.TickInterval).Msg("Policy updated")

		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.driver.Policy().TickInterval)

		case c, ok := <-changes:
			if !ok {
				return nil
			}
			s.onChange(ctx, c)
		}
	}
}

func (s *Session) tick(ctx context.Context) {
	now := s.now()
	store := s.driver.Store()
	d := s.driver.Tick(now)
	snap := s.driver.Snapshot()

	s.log.Debug().
		Str("active", store.Active().String()).
		Str("suggested", d.Suggested.String()).
		Float64("avg_fps", snap.AvgFPS).
		Dur("latency_avg", snap.TouchLatency.Average).
		Int("consecutive_issues", store.State().ConsecutiveIssues).
		Msg("Evaluated")

	s.record(ctx, history.TickRecord(s.id, now, store.Selected(), d, snap))
}

func (s *Session) onChange(ctx context.Context, c perf.Change) {
	s.log.Info().
		Str("from", c.From.String()).
		Str("to", c.To.String()).
		Str("selected", c.Selected.String()).
		Str("reason", string(c.Reason)).
		Msg("Performance mode changed")

	s.emit(s.modeMessage(MessageMode, c))
	s.record(ctx, history.ChangeRecord(s.id, c, s.driver.Suggested(), s.driver.Snapshot()))
}

func (s *Session) record(ctx context.Context, rec *history.Record) {
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("kind", string(rec.Kind)).Msg("Failed to record history")
	}
}

func (s *Session) modeMessage(kind string, c perf.Change) Message {
	from := c.From
	suggested := s.driver.Suggested()
	return Message{
		Type:      kind,
		Session:   s.id,
		At:        c.At,
		Mode:      c.To,
		Selected:  c.Selected,
		From:      &from,
		Reason:    c.Reason,
		Suggested: &suggested,
	}
}

func (s *Session) emitSnapshot(trigger string) {
	snap := s.driver.Snapshot()
	store := s.driver.Store()
	s.emit(Message{
		Type:     MessageSnapshot,
		Session:  s.id,
		At:       s.now(),
		Mode:     store.Active(),
		Selected: store.Selected(),
		Trigger:  trigger,
		Snapshot: &snap,
	})
}

func (s *Session) emit(m Message) {
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(m)
	}
	select {
	case s.out <- m:
	default:
		s.log.Debug().Str("type", m.Type).Msg("Client is behind, dropping message")
	}
}
