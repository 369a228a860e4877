// Package assembler builds the bounded prompt for one turn from the persona,
// retrieved memory, the short-term buffer and the user's input.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/telemetry"
	"github.com/cadre-oss/hearth/internal/token"
)

// Kind labels a segment of the assembled context.
type Kind string

const (
	KindPersona Kind = "persona"
	KindClock   Kind = "clock"
	KindFact    Kind = "fact"
	KindEpisode Kind = "episode"
	KindBuffer  Kind = "buffer"
	KindSpeaker Kind = "speaker"
	KindInput   Kind = "input"
)

// Segment is one message of the prompt with its estimated size.
type Segment struct {
	Kind   Kind   `json:"kind"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Items  int    `json:"items,omitempty"` // memory items merged into this segment
}

// Degradation records a memory tier skipped for this turn.
type Degradation struct {
	Tier string `json:"tier"`
	Code string `json:"code"`
	Err  error  `json:"-"`
}

// Context is an assembled prompt. Total never exceeds Budget.
type Context struct {
	Segments []Segment              `json:"segments"`
	Total    int                    `json:"total"`
	Budget   int                    `json:"budget"`
	Facts    []memory.ScoredFact    `json:"facts,omitempty"`
	Episodes []memory.ScoredEpisode `json:"episodes,omitempty"`
	Stale    int                    `json:"stale,omitempty"`
	Degraded []Degradation          `json:"degraded,omitempty"`
}

// Messages converts the segments into backend messages.
func (c *Context) Messages() []provider.Message {
	msgs := make([]provider.Message, 0, len(c.Segments))
	for _, s := range c.Segments {
		msgs = append(msgs, provider.Message{Role: s.Role, Content: s.Text})
	}
	return msgs
}

// Count returns the number of segments of kind k.
func (c *Context) Count(k Kind) int {
	n := 0
	for _, s := range c.Segments {
		if s.Kind == k {
			n++
		}
	}
	return n
}

// FactRetriever ranks facts for a query.
type FactRetriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]memory.ScoredFact, error)
}

// EpisodeSearcher finds similar past turns.
type EpisodeSearcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) (*memory.SearchResult, error)
}

// Options configures an Assembler.
type Options struct {
	Budget    int
	Preamble  string
	FactLimit int
	TopK      int
	Threshold float64

	Facts    FactRetriever
	Episodes EpisodeSearcher

	// Clock enables the current-time segment when set.
	Clock    func() time.Time
	Location *time.Location

	Estimator *token.Estimator
	Logger    *telemetry.Logger
	Metrics   *telemetry.Metrics
}

// Input is what a single turn contributes.
type Input struct {
	Text        string
	SpeakerLine string        // optional system line naming the speaker
	Buffer      []memory.Turn // short-term buffer, oldest first
}

// Assembler merges memory tiers under a token budget.
type Assembler struct {
	opts          Options
	personaTokens int
}

// New validates that the persona fits the budget.
func New(opts Options) (*Assembler, error) {
	if opts.Budget <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", opts.Budget)
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	pt := opts.Estimator.EstimateMessage(opts.Preamble)
	if pt > opts.Budget {
		return nil, apperrors.New(apperrors.CodeBudgetExceededByPreamble,
			fmt.Sprintf("persona needs %d tokens but the budget is %d", pt, opts.Budget)).
			WithSuggestion("Shorten the persona file or raise memory.token_budget")
	}
	return &Assembler{opts: opts, personaTokens: pt}, nil
}

// PersonaTokens is the estimated size of the persona segment.
func (a *Assembler) PersonaTokens() int { return a.personaTokens }

// Budget returns the configured token budget.
func (a *Assembler) Budget() int { return a.opts.Budget }

// Assemble builds the context for in. Memory tiers that fail are skipped and
// reported in Context.Degraded; only an input that cannot fit beside the
// persona is an error.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Context, error) {
	est := a.opts.Estimator
	budget := a.opts.Budget

	persona := Segment{Kind: KindPersona, Role: provider.RoleSystem, Text: a.opts.Preamble, Tokens: a.personaTokens}
	input := Segment{Kind: KindInput, Role: provider.RoleUser, Text: in.Text, Tokens: est.EstimateMessage(in.Text)}

	used := persona.Tokens + input.Tokens
	if used > budget {
		return nil, apperrors.New(apperrors.CodeInputTooLarge,
			fmt.Sprintf("input needs %d tokens, only %d remain after the persona", input.Tokens, budget-persona.Tokens))
	}

	var speaker *Segment
	if in.SpeakerLine != "" {
		s := Segment{Kind: KindSpeaker, Role: provider.RoleSystem, Text: in.SpeakerLine, Tokens: est.EstimateMessage(in.SpeakerLine)}
		if used+s.Tokens <= budget {
			speaker = &s
			used += s.Tokens
		}
	}

	out := &Context{Budget: budget}
	facts, episodes := a.retrieve(ctx, in.Text, out)

	segments := []Segment{persona}

	if a.opts.Clock != nil {
		text := clockLine(a.opts.Clock().In(a.opts.Location))
		if t := est.EstimateMessage(text); used+t <= budget {
			segments = append(segments, Segment{Kind: KindClock, Role: provider.RoleSystem, Text: text, Tokens: t})
			used += t
		}
	}

	if seg, kept := a.fillBlock(KindFact, factHeader, factLines(facts), budget-used); seg != nil {
		segments = append(segments, *seg)
		used += seg.Tokens
		out.Facts = facts[:kept]
	}

	episodes = dropBuffered(episodes, in.Buffer)
	if seg, kept := a.fillBlock(KindEpisode, episodeHeader, episodeLines(episodes), budget-used); seg != nil {
		segments = append(segments, *seg)
		used += seg.Tokens
		out.Episodes = episodes[:kept]
	}

	// Buffer: newest first while it fits, emitted oldest first.
	var chosen []Segment
	for i := len(in.Buffer) - 1; i >= 0; i-- {
		t := in.Buffer[i]
		seg := Segment{Kind: KindBuffer, Role: chatRole(t.Role), Text: t.Text, Tokens: est.EstimateMessage(t.Text)}
		if used+seg.Tokens > budget {
			break
		}
		chosen = append(chosen, seg)
		used += seg.Tokens
	}
	for i := len(chosen) - 1; i >= 0; i-- {
		segments = append(segments, chosen[i])
	}

	if speaker != nil {
		segments = append(segments, *speaker)
	}
	segments = append(segments, input)

	out.Segments = segments
	out.Total = used

	if m := a.opts.Metrics; m != nil {
		m.AddContextItems(string(KindFact), len(out.Facts))
		m.AddContextItems(string(KindEpisode), len(out.Episodes))
		m.AddContextItems(string(KindBuffer), len(chosen))
	}
	return out, nil
}

// retrieve queries facts and episodes concurrently. Failures are recorded on
// out and leave the tier empty.
func (a *Assembler) retrieve(ctx context.Context, query string, out *Context) ([]memory.ScoredFact, []memory.ScoredEpisode) {
	var (
		facts    []memory.ScoredFact
		result   *memory.SearchResult
		factErr  error
		episodeE error
	)

	g, gctx := errgroup.WithContext(ctx)
	if a.opts.Facts != nil && a.opts.FactLimit > 0 {
		g.Go(func() error {
			facts, factErr = a.opts.Facts.Retrieve(gctx, query, a.opts.FactLimit)
			return nil
		})
	}
	if a.opts.Episodes != nil && a.opts.TopK > 0 {
		g.Go(func() error {
			result, episodeE = a.opts.Episodes.Search(gctx, query, a.opts.TopK, a.opts.Threshold)
			return nil
		})
	}
	_ = g.Wait()

	if factErr != nil {
		a.degrade(ctx, out, string(KindFact), factErr)
		facts = nil
	}
	var episodes []memory.ScoredEpisode
	if episodeE != nil {
		a.degrade(ctx, out, string(KindEpisode), episodeE)
	} else if result != nil {
		episodes = result.Episodes
		out.Stale = result.Stale
	}
	return facts, episodes
}

func (a *Assembler) degrade(ctx context.Context, out *Context, tier string, err error) {
	code := apperrors.AsCode(err)
	if !apperrors.IsDegradable(err) {
		code = apperrors.CodeStorageUnavailable
	}
	a.opts.Logger.WithTrace(ctx).Warn("Memory tier skipped", "tier", tier, "code", code, "error", err)
	if a.opts.Metrics != nil {
		a.opts.Metrics.IncTierFailure(tier, code)
	}
	out.Degraded = append(out.Degraded, Degradation{Tier: tier, Code: code, Err: err})
}

// fillBlock adds whole lines under header while the block fits in room. It
// returns nil when no line fits.
func (a *Assembler) fillBlock(kind Kind, header string, lines []string, room int) (*Segment, int) {
	if len(lines) == 0 {
		return nil, 0
	}
	var b strings.Builder
	b.WriteString(header)
	tokens, kept := 0, 0
	for _, line := range lines {
		candidate := b.String() + "\n" + line
		t := a.opts.Estimator.EstimateMessage(candidate)
		if t > room {
			break
		}
		b.WriteString("\n" + line)
		tokens = t
		kept++
	}
	if kept == 0 {
		return nil, 0
	}
	return &Segment{Kind: kind, Role: provider.RoleSystem, Text: b.String(), Tokens: tokens, Items: kept}, kept
}

const (
	factHeader    = "【重要信息】"
	episodeHeader = "【相关历史】"
)

func factLines(facts []memory.ScoredFact) []string {
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = "- " + f.Text
	}
	return lines
}

func episodeLines(eps []memory.ScoredEpisode) []string {
	lines := make([]string, len(eps))
	for i, e := range eps {
		who := "用户"
		if e.Role == memory.RoleAgent {
			who = "我"
		} else if e.Speaker != "" {
			who = e.Speaker
		}
		lines[i] = fmt.Sprintf("- [%s] %s：%s", e.CreatedAt.Format("2006-01-02"), who, e.Text)
	}
	return lines
}

// dropBuffered removes episodes already present in the short-term buffer.
func dropBuffered(eps []memory.ScoredEpisode, buffer []memory.Turn) []memory.ScoredEpisode {
	if len(eps) == 0 || len(buffer) == 0 {
		return eps
	}
	inBuffer := make(map[int64]bool, len(buffer))
	for _, t := range buffer {
		inBuffer[t.Seq] = true
	}
	kept := eps[:0:0]
	for _, e := range eps {
		if !inBuffer[e.Seq] {
			kept = append(kept, e)
		}
	}
	return kept
}

func chatRole(r memory.Role) string {
	if r == memory.RoleAgent {
		return provider.RoleAssistant
	}
	return provider.RoleUser
}

var weekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

func clockLine(now time.Time) string {
	return fmt.Sprintf("【当前时间】\n今天是 %s %s，现在是 %s",
		now.Format("2006年01月02日"), weekdays[now.Weekday()], now.Format("15:04"))
}
