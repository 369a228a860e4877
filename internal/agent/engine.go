// Package agent runs conversation turns: it assembles context from memory,
// calls the backend dispatcher and commits the finished turn to every tier.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cadre-oss/hearth/internal/assembler"
	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/embed"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/event"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/persona"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/telemetry"
	"github.com/cadre-oss/hearth/internal/token"
)

// Completer is the backend surface the engine needs. *provider.Dispatcher
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Config   *config.Config
	Persona  *persona.Profile
	Storage  memory.Storage
	Embedder embed.Embedder
	Backend  Completer
	Bus      *event.Bus
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics
	Clock    func() time.Time

	// closers run on Close after the storage is closed.
	closers []func() error
}

// Engine owns the memory tiers and serves turns for any number of sessions.
type Engine struct {
	cfg       *config.Config
	persona   *persona.Profile
	storage   memory.Storage
	facts     *memory.FactStore
	episodes  *memory.EpisodicStore
	assembler *assembler.Assembler
	backend   Completer
	seq       *memory.Sequencer
	estimator *token.Estimator
	bus       *event.Bus
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	clock     func() time.Time
	closers   []func() error

	closeOnce sync.Once
}

// NewEngine wires the memory tiers and the assembler. It fails when the
// persona does not fit the token budget.
func NewEngine(ctx context.Context, d Deps) (*Engine, error) {
	if d.Config == nil || d.Storage == nil || d.Embedder == nil || d.Backend == nil {
		return nil, fmt.Errorf("engine needs config, storage, embedder and backend")
	}
	if d.Persona == nil {
		d.Persona = &persona.Profile{Name: d.Config.Agent.Name}
	}
	if d.Logger == nil {
		d.Logger = telemetry.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NewMetrics()
	}
	if d.Bus == nil {
		d.Bus = event.NewBus(d.Logger)
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	mc := d.Config.Memory
	facts := memory.NewFactStore(d.Storage, memory.FactStoreOptions{
		MinRelevance:    mc.MinRelevance,
		RelevanceWeight: mc.RelevanceWeight,
		RecencyWeight:   mc.RecencyWeight,
		Clock:           d.Clock,
	})
	episodes := memory.NewEpisodicStore(d.Storage, d.Embedder)

	if err := episodes.CheckVersion(ctx); err != nil {
		if apperrors.AsCode(err) != apperrors.CodeEmbeddingVersionMismatch {
			return nil, err
		}
		d.Logger.Warn("Stored episodes use another embedding version",
			"error", err, "suggestion", apperrors.Suggestion(err))
	}

	last, err := episodes.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}
	factSeq, err := facts.MaxSourceSeq(ctx)
	if err != nil {
		return nil, err
	}
	last = max(last, factSeq)

	est := token.New(nil)
	opts := assembler.Options{
		Budget:    mc.TokenBudget,
		Preamble:  d.Persona.Preamble(),
		FactLimit: mc.FactLimit,
		TopK:      mc.TopK,
		Threshold: mc.SimilarityThreshold,
		Facts:     facts,
		Episodes:  episodes,
		Estimator: est,
		Logger:    d.Logger,
		Metrics:   d.Metrics,
	}
	if d.Config.Agent.ClockEnabled() {
		opts.Clock = d.Clock
		if tz := d.Config.Agent.Timezone; tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, apperrors.Wrapf(apperrors.CodeConfigInvalid, err, "unknown timezone %q", tz)
			}
			opts.Location = loc
		}
	}
	asm, err := assembler.New(opts)
	if err != nil {
		return nil, err
	}

	d.Logger.Debug("Engine ready",
		"persona", d.Persona.Name,
		"persona_tokens", asm.PersonaTokens(),
		"budget", asm.Budget(),
		"last_seq", last,
		"embedding_version", episodes.Version())

	return &Engine{
		cfg:       d.Config,
		persona:   d.Persona,
		storage:   d.Storage,
		facts:     facts,
		episodes:  episodes,
		assembler: asm,
		backend:   d.Backend,
		seq:       memory.NewSequencer(last),
		estimator: est,
		bus:       d.Bus,
		logger:    d.Logger,
		metrics:   d.Metrics,
		clock:     d.Clock,
		closers:   d.closers,
	}, nil
}

// Reply is the outcome of one successful turn.
type Reply struct {
	Text     string             `json:"text"`
	Backend  string             `json:"backend"`
	UserSeq  int64              `json:"user_seq"`
	AgentSeq int64              `json:"agent_seq"`
	Fact     *memory.Fact       `json:"fact,omitempty"`
	Context  *assembler.Context `json:"context,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// Chat runs one turn for sess. The turn is committed to the buffer and the
// durable tiers only after the backend replied; on error nothing is stored.
func (e *Engine) Chat(ctx context.Context, sess *Session, input string) (*Reply, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("input is empty")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	start := e.clock()
	tc := telemetry.NewTraceContext(sess.ID).WithSpeaker(sess.speaker.Name).WithTurn(sess.turns + 1)
	ctx = telemetry.ContextWithTrace(ctx, tc)
	ctx, span := telemetry.StartSpan(ctx, "turn", attribute.String("hearth.speaker", sess.speaker.Name))
	defer span.End()
	log := e.logger.WithTrace(ctx)

	var speakerLine string
	if sess.speaker.Name != "" {
		speakerLine = sess.speaker.Line()
	}

	built, err := e.assembler.Assemble(ctx, assembler.Input{
		Text:        input,
		SpeakerLine: speakerLine,
		Buffer:      sess.buffer.Snapshot(),
	})
	if err != nil {
		return nil, e.fail(ctx, sess, err)
	}
	for _, d := range built.Degraded {
		e.emit(event.MemoryDegraded, map[string]interface{}{
			"session_id": sess.ID, "tier": d.Tier, "code": d.Code, "error": d.Err.Error(),
		})
	}

	resp, err := e.backend.Complete(ctx, &provider.Request{Messages: built.Messages()})
	if err != nil {
		span.RecordError(err)
		return nil, e.fail(ctx, sess, err)
	}

	now := e.clock()
	user := memory.Turn{Seq: e.seq.Next(), Role: memory.RoleUser, Text: input, Speaker: sess.speaker.Name, CreatedAt: now}
	agent := memory.Turn{Seq: e.seq.Next(), Role: memory.RoleAgent, Text: resp.Content, CreatedAt: now}

	sess.buffer.Push(user)
	sess.buffer.Push(agent)
	sess.turns++

	for _, t := range []memory.Turn{user, agent} {
		if _, err := e.episodes.Append(ctx, t); err != nil {
			log.Warn("Failed to persist episode", "seq", t.Seq, "error", err)
			e.degraded(sess, "episode", err)
		}
	}

	fact, err := e.facts.Capture(ctx, user)
	if err != nil {
		log.Warn("Failed to capture fact", "seq", user.Seq, "error", err)
		e.degraded(sess, "fact", err)
	} else if fact != nil {
		e.metrics.IncFactsCaptured()
		e.emit(event.FactCaptured, map[string]interface{}{
			"session_id": sess.ID, "fact_id": fact.ID, "category": string(fact.Category), "text": fact.Text,
		})
	}

	elapsed := e.clock().Sub(start)
	e.metrics.IncTurnsCompleted(elapsed, built.Total)
	e.metrics.Flush(string(event.TurnCompleted), tc.Labels())
	e.emit(event.TurnCompleted, map[string]interface{}{
		"session_id":     sess.ID,
		"seq":            agent.Seq,
		"backend":        resp.Backend,
		"context_tokens": built.Total,
		"facts":          len(built.Facts),
		"episodes":       len(built.Episodes),
		"degraded":       len(built.Degraded) > 0,
	})
	log.Info("Turn completed",
		"backend", resp.Backend,
		"context_tokens", built.Total,
		"facts", len(built.Facts),
		"episodes", len(built.Episodes),
		"duration", elapsed)

	return &Reply{
		Text:     resp.Content,
		Backend:  resp.Backend,
		UserSeq:  user.Seq,
		AgentSeq: agent.Seq,
		Fact:     fact,
		Context:  built,
		Duration: elapsed,
	}, nil
}

func (e *Engine) fail(ctx context.Context, sess *Session, err error) error {
	e.metrics.IncTurnsFailed()
	e.metrics.Flush(string(event.TurnFailed), map[string]string{"session_id": sess.ID})
	e.emit(event.TurnFailed, map[string]interface{}{
		"session_id": sess.ID, "code": apperrors.AsCode(err), "error": err.Error(),
	})
	if !errors.Is(err, context.Canceled) {
		e.logger.WithTrace(ctx).Warn("Turn failed", "error", err)
	}
	return err
}

// degraded reports a memory tier failure that the turn survived. Errors
// without a memory tier code are reported as storage failures.
func (e *Engine) degraded(sess *Session, tier string, err error) {
	code := apperrors.AsCode(err)
	if !apperrors.IsDegradable(err) {
		code = apperrors.CodeStorageUnavailable
	}
	e.emit(event.MemoryDegraded, map[string]interface{}{
		"session_id": sess.ID, "tier": tier, "code": code, "error": err.Error(),
	})
}

func (e *Engine) emit(t event.EventType, data map[string]interface{}) {
	if err := e.bus.Emit(event.NewEvent(t, data)); err != nil {
		e.logger.Warn("Blocking hook failed", "event", string(t), "error", err)
	}
}

// AddFact stores an explicit fact outside of a conversation.
func (e *Engine) AddFact(ctx context.Context, text string, category memory.Category) (*memory.Fact, error) {
	f, err := e.facts.AddExplicit(ctx, text, category)
	if err != nil {
		return nil, err
	}
	e.metrics.IncFactsCaptured()
	e.emit(event.FactCaptured, map[string]interface{}{
		"fact_id": f.ID, "category": string(f.Category), "text": f.Text, "manual": true,
	})
	return f, nil
}

// ListFacts returns every stored fact, oldest first.
func (e *Engine) ListFacts(ctx context.Context) ([]memory.Fact, error) {
	return e.facts.List(ctx)
}

// SearchFacts ranks facts for query the way the assembler does.
func (e *Engine) SearchFacts(ctx context.Context, query string) ([]memory.ScoredFact, error) {
	return e.facts.Retrieve(ctx, query, e.cfg.Memory.FactLimit)
}

// RecentEpisodes returns the newest limit episodes, oldest first.
func (e *Engine) RecentEpisodes(ctx context.Context, limit int) ([]memory.Episode, error) {
	return e.episodes.Recent(ctx, limit)
}

// SearchEpisodes finds past turns similar to query with the configured top-k
// and similarity threshold.
func (e *Engine) SearchEpisodes(ctx context.Context, query string) (*memory.SearchResult, error) {
	return e.episodes.Search(ctx, query, e.cfg.Memory.TopK, e.cfg.Memory.SimilarityThreshold)
}

// Persona returns the loaded persona.
func (e *Engine) Persona() *persona.Profile { return e.persona }

// Bus returns the lifecycle event bus.
func (e *Engine) Bus() *event.Bus { return e.bus }

// CheckVersion reports stored episodes embedded with another version.
func (e *Engine) CheckVersion(ctx context.Context) error {
	return e.episodes.CheckVersion(ctx)
}

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// Close drains non-blocking hooks and releases the storage.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.bus.Wait()
		if err := e.storage.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, c := range e.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
