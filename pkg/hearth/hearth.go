// Package hearth provides a public API for embedding the companion in other
// programs.
//
// Example usage:
//
//	import "github.com/cadre-oss/hearth/pkg/hearth"
//
//	c, err := hearth.Open(ctx, "hearth.yaml")
//	if err != nil { ... }
//	defer c.Close()
//
//	conv := c.Conversation("妈妈")
//	reply, err := conv.Say(ctx, "今天晚上吃什么？")
package hearth

import (
	"context"
	"fmt"

	"github.com/cadre-oss/hearth/internal/agent"
	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// Reply is the result of one turn.
type Reply = agent.Reply

// Stats is a point-in-time view of memory and backends.
type Stats = agent.Stats

// Fact is a remembered assertion about the user.
type Fact = memory.Fact

// Companion is an opened engine.
type Companion struct {
	engine *agent.Engine
	logger *telemetry.Logger
}

// Open loads the configuration file at path and opens the companion.
func Open(ctx context.Context, path string) (*Companion, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return OpenConfig(ctx, cfg)
}

// OpenConfig opens the companion from an already loaded configuration.
func OpenConfig(ctx context.Context, cfg *config.Config) (*Companion, error) {
	logger := telemetry.NewLoggerLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}
	engine, err := agent.Open(ctx, cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return &Companion{engine: engine, logger: logger}, nil
}

// Conversation starts a session with the named speaker; empty means unknown.
func (c *Companion) Conversation(speaker string) *Conversation {
	return &Conversation{c: c, session: c.engine.NewSession(speaker)}
}

// Remember stores a fact explicitly.
func (c *Companion) Remember(ctx context.Context, text string) (*Fact, error) {
	return c.engine.AddFact(ctx, text, memory.CategoryExplicit)
}

// Facts returns every stored fact.
func (c *Companion) Facts(ctx context.Context) ([]Fact, error) {
	return c.engine.ListFacts(ctx)
}

// Stats reports memory counts and the backend state.
func (c *Companion) Stats(ctx context.Context) (*Stats, error) {
	return c.engine.Stats(ctx)
}

// Close flushes hooks and releases storage.
func (c *Companion) Close() error {
	err := c.engine.Close()
	c.logger.Close()
	return err
}

// Conversation is one session. Its short-term buffer is dropped with it.
type Conversation struct {
	c       *Companion
	session *agent.Session
}

// ID returns the session id.
func (v *Conversation) ID() string { return v.session.ID }

// Say runs one turn and returns the reply.
func (v *Conversation) Say(ctx context.Context, input string) (*Reply, error) {
	return v.c.engine.Chat(ctx, v.session, input)
}

// SetSpeaker switches who is talking.
func (v *Conversation) SetSpeaker(label string) {
	v.c.engine.SetSpeaker(v.session, label)
}
