package server

import (
	"sync"

	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/probe"
	"codeberg.org/nexustouch/perfd/internal/session"
)

const observerBuffer = 64

type HubOptions struct {
	Policy      perf.Policy
	Sampler     perf.SamplerConfig
	InitialMode perf.Mode
	Device      perf.DeviceInfo
	Recorder    history.Recorder
	Metrics     *Metrics
	Logger      logger.Logger
}

// Hub tracks live sessions and fans their messages out to observers.
type Hub struct {
	opts HubOptions
	log  logger.Logger

	mu        sync.RWMutex
	sessions  map[string]*session.Session
	observers map[int]chan session.Message
	nextObs   int
	policy    perf.Policy
	host      *probe.Reading
}

func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Hub{
		opts:      opts,
		log:       opts.Logger,
		sessions:  make(map[string]*session.Session),
		observers: make(map[int]chan session.Message),
		policy:    opts.Policy,
	}
}

// NewSession creates and registers a session. The caller runs it and
// removes it when it ends.
func (h *Hub) NewSession(initial perf.Mode) *session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := session.New(session.Options{
		Policy:      h.policy,
		Sampler:     h.opts.Sampler,
		InitialMode: initial,
		Device:      h.opts.Device,
		Recorder:    h.opts.Recorder,
		Logger:      h.log,
		OnMessage:   h.broadcast,
	})
	if h.host != nil {
		s.UpdateHost(*h.host)
	}
	h.sessions[s.ID()] = s

	return s
}

func (h *Hub) InitialMode() perf.Mode {
	return h.opts.InitialMode
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// UpdatePolicy applies a new controller policy to current and future sessions.
func (h *Hub) UpdatePolicy(p perf.Policy) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.policy = p
	for _, s := range h.sessions {
		s.UpdatePolicy(p)
	}
	h.log.Info().Int("sessions", len(h.sessions)).Msg("Controller policy reloaded")
}

// UpdateHost forwards a host probe reading to every session.
func (h *Hub) UpdateHost(r probe.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.host = &r
	for _, s := range h.sessions {
		s.UpdateHost(r)
	}
}

// Observe subscribes to the messages of all sessions. Observers that fall
// behind miss messages.
func (h *Hub) Observe() (<-chan session.Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextObs
	h.nextObs++
	ch := make(chan session.Message, observerBuffer)
	h.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.observers, id)
			close(ch)
		})
	}
}

func (h *Hub) broadcast(m session.Message) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.Observe(m)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.observers {
		select {
		case ch <- m:
		default:
		}
	}
}
