package assembler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/telemetry"
	"github.com/cadre-oss/hearth/internal/testutil"
)

type factsFunc func(ctx context.Context, query string, limit int) ([]memory.ScoredFact, error)

func (f factsFunc) Retrieve(ctx context.Context, query string, limit int) ([]memory.ScoredFact, error) {
	return f(ctx, query, limit)
}

type episodesFunc func(ctx context.Context, query string, topK int, threshold float64) (*memory.SearchResult, error)

func (f episodesFunc) Search(ctx context.Context, query string, topK int, threshold float64) (*memory.SearchResult, error) {
	return f(ctx, query, topK, threshold)
}

func staticFacts(texts ...string) factsFunc {
	return func(_ context.Context, _ string, limit int) ([]memory.ScoredFact, error) {
		var out []memory.ScoredFact
		for i, t := range texts {
			if i == limit {
				break
			}
			out = append(out, memory.ScoredFact{Fact: memory.Fact{ID: fmt.Sprint(i), Text: t}, Relevance: 0.8, Score: 0.8})
		}
		return out, nil
	}
}

func staticEpisodes(eps ...memory.ScoredEpisode) episodesFunc {
	return func(_ context.Context, _ string, topK int, _ float64) (*memory.SearchResult, error) {
		if len(eps) > topK {
			eps = eps[:topK]
		}
		return &memory.SearchResult{Episodes: eps}, nil
	}
}

func scoredEpisode(seq int64, text string, sim float64) memory.ScoredEpisode {
	return memory.ScoredEpisode{
		Episode:    memory.Episode{Seq: seq, Role: memory.RoleUser, Text: text, CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		Similarity: sim,
	}
}

func baseOptions() Options {
	return Options{
		Budget:    400,
		Preamble:  "你是小星，一个温暖的家庭陪伴机器人。",
		FactLimit: 5,
		TopK:      3,
		Threshold: 0.5,
	}
}

func TestNew_PersonaLargerThanBudget(t *testing.T) {
	opts := baseOptions()
	opts.Budget = 4000
	opts.Preamble = strings.Repeat("abcd", 5000) // 5000 tokens

	_, err := New(opts)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeBudgetExceededByPreamble, apperrors.AsCode(err))
	assert.NotEmpty(t, apperrors.Suggestion(err))

	opts.Budget = 0
	_, err = New(opts)
	assert.Error(t, err)
}

func TestAssemble_InputTooLarge(t *testing.T) {
	a, err := New(baseOptions())
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), Input{Text: strings.Repeat("很长", 400)})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputTooLarge, apperrors.AsCode(err))
}

func TestAssemble_LayoutAndOrder(t *testing.T) {
	opts := baseOptions()
	opts.Facts = staticFacts("我最喜欢的颜色是蓝色")
	opts.Episodes = staticEpisodes(scoredEpisode(3, "上周我们聊过蓝色的天空", 0.8))
	opts.Clock = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	opts.Location = time.UTC
	a, err := New(opts)
	require.NoError(t, err)

	buffer := []memory.Turn{
		{Seq: 10, Role: memory.RoleUser, Text: "你好"},
		{Seq: 11, Role: memory.RoleAgent, Text: "你好呀"},
	}
	ctx, err := a.Assemble(context.Background(), Input{Text: "我喜欢什么颜色？", SpeakerLine: "【当前对话者】\n正在和你说话的是：小明", Buffer: buffer})
	require.NoError(t, err)

	kinds := make([]Kind, len(ctx.Segments))
	for i, s := range ctx.Segments {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []Kind{KindPersona, KindClock, KindFact, KindEpisode, KindBuffer, KindBuffer, KindSpeaker, KindInput}, kinds)

	assert.Contains(t, ctx.Segments[1].Text, "2024年05月01日 星期三")
	assert.Contains(t, ctx.Segments[2].Text, "我最喜欢的颜色是蓝色")
	assert.Contains(t, ctx.Segments[3].Text, "上周我们聊过蓝色的天空")
	assert.Equal(t, provider.RoleUser, ctx.Segments[4].Role)
	assert.Equal(t, provider.RoleAssistant, ctx.Segments[5].Role)

	sum := 0
	for _, s := range ctx.Segments {
		sum += s.Tokens
	}
	assert.Equal(t, sum, ctx.Total)
	assert.LessOrEqual(t, ctx.Total, ctx.Budget)
	assert.Len(t, ctx.Facts, 1)
	assert.Len(t, ctx.Episodes, 1)

	msgs := ctx.Messages()
	assert.Equal(t, provider.RoleSystem, msgs[0].Role)
	assert.Equal(t, "我喜欢什么颜色？", msgs[len(msgs)-1].Content)
}

func TestAssemble_CapturedFactAppearsVerbatim(t *testing.T) {
	bg := context.Background()
	storage := memory.NewInMemoryStorage()
	facts := memory.NewFactStore(storage, memory.FactStoreOptions{MinRelevance: 0.1})
	episodes := memory.NewEpisodicStore(storage, &testutil.StaticEmbedder{})

	turn := memory.Turn{Seq: 1, Role: memory.RoleUser, Text: "记住我最喜欢的颜色是蓝色", CreatedAt: time.Now()}
	f, err := facts.Capture(bg, turn)
	require.NoError(t, err)
	require.NotNil(t, f)
	_, err = episodes.Append(bg, turn)
	require.NoError(t, err)

	opts := baseOptions()
	opts.Facts = facts
	opts.Episodes = episodes
	a, err := New(opts)
	require.NoError(t, err)

	// A later session: the buffer is empty.
	out, err := a.Assemble(bg, Input{Text: "我最喜欢什么颜色？"})
	require.NoError(t, err)

	var prompt strings.Builder
	for _, s := range out.Segments {
		prompt.WriteString(s.Text)
	}
	assert.Contains(t, prompt.String(), "记住我最喜欢的颜色是蓝色")
	assert.Empty(t, out.Degraded)
}

func TestAssemble_BufferKeepsNewestEmitsOldestFirst(t *testing.T) {
	opts := baseOptions()
	opts.Preamble = "persona"
	// persona 2+4, input 1+4, each buffer turn 2+4 -> room for two turns.
	opts.Budget = 6 + 5 + 12 + 3
	a, err := New(opts)
	require.NoError(t, err)

	var buffer []memory.Turn
	for i := int64(1); i <= 5; i++ {
		buffer = append(buffer, memory.Turn{Seq: i, Role: memory.RoleUser, Text: fmt.Sprintf("turn%d", i)})
	}
	out, err := a.Assemble(context.Background(), Input{Text: "hi", Buffer: buffer})
	require.NoError(t, err)

	var texts []string
	for _, s := range out.Segments {
		if s.Kind == KindBuffer {
			texts = append(texts, s.Text)
		}
	}
	assert.Equal(t, []string{"turn4", "turn5"}, texts)
	assert.LessOrEqual(t, out.Total, out.Budget)
}

func TestAssemble_DropsEpisodesAlreadyBuffered(t *testing.T) {
	opts := baseOptions()
	opts.Episodes = staticEpisodes(scoredEpisode(10, "你好", 0.9), scoredEpisode(2, "很久以前的话", 0.7))
	a, err := New(opts)
	require.NoError(t, err)

	out, err := a.Assemble(context.Background(), Input{
		Text:   "你好",
		Buffer: []memory.Turn{{Seq: 10, Role: memory.RoleUser, Text: "你好"}},
	})
	require.NoError(t, err)
	require.Len(t, out.Episodes, 1)
	assert.Equal(t, int64(2), out.Episodes[0].Seq)
}

func TestAssemble_FailedTierDegrades(t *testing.T) {
	opts := baseOptions()
	opts.Facts = factsFunc(func(context.Context, string, int) ([]memory.ScoredFact, error) {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to list facts", errors.New("locked"))
	})
	opts.Episodes = staticEpisodes(scoredEpisode(1, "我们去过海边", 0.9))
	opts.Metrics = telemetry.NewMetrics()
	a, err := New(opts)
	require.NoError(t, err)

	out, err := a.Assemble(context.Background(), Input{Text: "海边好玩吗"})
	require.NoError(t, err)
	require.Len(t, out.Degraded, 1)
	assert.Equal(t, "fact", out.Degraded[0].Tier)
	assert.Equal(t, apperrors.CodeStorageUnavailable, out.Degraded[0].Code)
	assert.Equal(t, 0, out.Count(KindFact))
	assert.Equal(t, 1, out.Count(KindEpisode))
	assert.Equal(t, int64(1), opts.Metrics.TierFailures)
}

func TestAssemble_DegradedTierCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"embedding outage", apperrors.Wrap(apperrors.CodeEmbeddingUnavailable, "failed to embed query", errors.New("offline")), apperrors.CodeEmbeddingUnavailable},
		{"version mismatch", apperrors.New(apperrors.CodeEmbeddingVersionMismatch, "stale index"), apperrors.CodeEmbeddingVersionMismatch},
		{"uncoded", errors.New("disk I/O error"), apperrors.CodeStorageUnavailable},
		{"non memory code", apperrors.New(apperrors.CodeBackendUnavailable, "wrong tier"), apperrors.CodeStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions()
			opts.Facts = staticFacts("我喜欢下雨天")
			opts.Episodes = episodesFunc(func(context.Context, string, int, float64) (*memory.SearchResult, error) {
				return nil, tt.err
			})
			a, err := New(opts)
			require.NoError(t, err)

			out, err := a.Assemble(context.Background(), Input{Text: "下雨了"})
			require.NoError(t, err)
			require.Len(t, out.Degraded, 1)
			assert.Equal(t, "episode", out.Degraded[0].Tier)
			assert.Equal(t, tt.want, out.Degraded[0].Code)
			assert.Equal(t, 1, out.Count(KindFact))
		})
	}
}

func TestAssemble_FactsFillBeforeEpisodes(t *testing.T) {
	opts := baseOptions()
	opts.Preamble = "p"
	opts.Facts = staticFacts("fact one is here")
	opts.Episodes = staticEpisodes(scoredEpisode(1, "episode one is here", 0.8))
	// Enough for the fact block but not for both blocks.
	opts.Budget = 5 + 5 + 14
	a, err := New(opts)
	require.NoError(t, err)

	out, err := a.Assemble(context.Background(), Input{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count(KindFact))
	assert.Equal(t, 0, out.Count(KindEpisode))
	assert.LessOrEqual(t, out.Total, out.Budget)
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	alphabet := []rune("abc de 你好喜欢蓝色天气。")
	randText := func(max int) string {
		n := 1 + rng.Intn(max)
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		return b.String()
	}

	for i := 0; i < 300; i++ {
		var facts []string
		for j := rng.Intn(8); j > 0; j-- {
			facts = append(facts, randText(60))
		}
		var eps []memory.ScoredEpisode
		for j := rng.Intn(6); j > 0; j-- {
			eps = append(eps, scoredEpisode(int64(100+j), randText(80), 0.9))
		}
		var buffer []memory.Turn
		for j := rng.Intn(12); j > 0; j-- {
			buffer = append(buffer, memory.Turn{Seq: int64(j), Role: memory.RoleUser, Text: randText(50)})
		}

		opts := Options{
			Budget:    30 + rng.Intn(300),
			Preamble:  randText(40),
			FactLimit: 1 + rng.Intn(6),
			TopK:      1 + rng.Intn(4),
			Facts:     staticFacts(facts...),
			Episodes:  staticEpisodes(eps...),
		}
		if rng.Intn(2) == 0 {
			opts.Clock = time.Now
		}
		a, err := New(opts)
		if err != nil {
			require.Equal(t, apperrors.CodeBudgetExceededByPreamble, apperrors.AsCode(err))
			continue
		}

		in := Input{Text: randText(40), Buffer: buffer}
		if rng.Intn(2) == 0 {
			in.SpeakerLine = randText(20)
		}
		out, err := a.Assemble(context.Background(), in)
		if err != nil {
			require.Equal(t, apperrors.CodeInputTooLarge, apperrors.AsCode(err))
			continue
		}

		require.LessOrEqual(t, out.Total, opts.Budget, "iteration %d", i)
		sum := 0
		for _, s := range out.Segments {
			sum += s.Tokens
		}
		require.Equal(t, out.Total, sum)
		require.Equal(t, KindPersona, out.Segments[0].Kind)
		require.Equal(t, KindInput, out.Segments[len(out.Segments)-1].Kind)
	}
}
