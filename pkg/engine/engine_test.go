package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/models"
)

const ratioQuestion = "Quel est le taux d'endettement par rapport à l'EBITDA ?"

type fakeUpstream struct {
	mu     sync.Mutex
	chunks []string
	fail   map[string]error
	calls  []string
}

func (f *fakeUpstream) Stream(ctx context.Context, req dispatch.Request, emit dispatch.EmitFunc) (models.Usage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Model)
	err := f.fail[req.Model]
	f.mu.Unlock()
	if err != nil {
		return models.Usage{}, err
	}
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return models.Usage{}, err
		}
	}
	return models.Usage{InputTokens: 100, OutputTokens: 10}, nil
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memSink struct {
	recs []models.UsageRecord
}

func (s *memSink) Write(_ context.Context, rec models.UsageRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Tiers.Fast = models.ModelTier{Model: "fast-m", InputCost: 1, OutputCost: 5}
	cfg.Tiers.Capable = models.ModelTier{Model: "capable-m", InputCost: 3, OutputCost: 15, Alternates: []string{"capable-alt"}}
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, up dispatch.Upstream, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, up, nil, opts...)
	require.NoError(t, err)
	return e
}

func collect(out *strings.Builder) dispatch.EmitFunc {
	return func(c string) error {
		out.WriteString(c)
		return nil
	}
}

func TestHandleMissThenHit(t *testing.T) {
	up := &fakeUpstream{chunks: []string{"Le ratio ", "est de 2,5."}}
	e := newEngine(t, testConfig(), up)
	turn := Turn{Utterance: ratioQuestion, TenantID: "t1"}

	var first strings.Builder
	res, err := e.Handle(context.Background(), turn, collect(&first))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, models.TierCapable, res.Tier)
	assert.Equal(t, "capable-m", res.Model)
	require.NotNil(t, res.Decision)
	assert.Equal(t, "semantic", res.Decision.Rule)
	assert.Equal(t, models.CategoryRatioAnalysis, res.Category)
	assert.InDelta(t, 100/1e6*3+10/1e6*15, res.Cost, 1e-12)
	assert.Equal(t, "Le ratio est de 2,5.", first.String())

	var second strings.Builder
	res, err = e.Handle(context.Background(), turn, collect(&second))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Nil(t, res.Decision)
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, up.callCount(), "second turn must not reach upstream")

	stats := e.UsageStats(models.UsageFilter{})
	assert.Equal(t, 2, stats.Requests)
	assert.Equal(t, 1, stats.Cached)
	assert.InDelta(t, 0.5, stats.CacheHitRate, 1e-9)
	assert.Equal(t, int64(1), e.CacheStats().Hits)

	recs := e.UsageRecords(models.UsageFilter{})
	require.Len(t, recs, 2)
	assert.Equal(t, models.OutcomeOK, recs[0].Outcome)
	assert.Equal(t, models.OutcomeCacheHit, recs[1].Outcome)
	assert.Equal(t, "question", recs[0].TaskType)
	assert.NotEqual(t, recs[0].RequestID, recs[1].RequestID)
}

func TestHandleTrivialClarificationUsesFastTier(t *testing.T) {
	up := &fakeUpstream{chunks: []string{"Noté."}}
	e := newEngine(t, testConfig(), up)

	res, err := e.Handle(context.Background(), Turn{
		Utterance: "20",
		TenantID:  "t1",
		Signal:    models.ConversationSignal{Step: 2, TotalSteps: 6, ConversationLength: 3},
	}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.Equal(t, models.TierFast, res.Tier)
	assert.Equal(t, "fast-m", res.Model)
	assert.Equal(t, []string{"fast-m"}, up.calls)
}

func TestHandleShortAnswersDependOnPreviousQuestion(t *testing.T) {
	up := &fakeUpstream{chunks: []string{"ok"}}
	e := newEngine(t, testConfig(), up)
	sig := models.ConversationSignal{Step: 2, TotalSteps: 6, ConversationLength: 3}

	for _, prev := range []string{"Combien d'employés ?", "Depuis combien d'années ?"} {
		res, err := e.Handle(context.Background(), Turn{
			Utterance: "20", TenantID: "t1", Signal: sig, LastAssistantMessage: prev,
		}, collect(&strings.Builder{}))
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 2, up.callCount())
}

func TestHandleFailureIsRecordedNotCached(t *testing.T) {
	up := &fakeUpstream{
		chunks: []string{"x"},
		fail:   map[string]error{"capable-m": dispatch.Fatal("capable-m", http.StatusTooManyRequests, errors.New("rate limited"))},
	}
	e := newEngine(t, testConfig(), up)
	turn := Turn{Utterance: ratioQuestion, TenantID: "t1"}

	_, err := e.Handle(context.Background(), turn, collect(&strings.Builder{}))
	require.Error(t, err)
	var upErr *dispatch.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)

	stats := e.UsageStats(models.UsageFilter{})
	assert.Equal(t, 1, stats.Requests)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, int64(0), e.CacheStats().Entries)

	_, err = e.Handle(context.Background(), turn, collect(&strings.Builder{}))
	require.Error(t, err)
	assert.Equal(t, 2, up.callCount())
}

func TestHandleSubstitution(t *testing.T) {
	up := &fakeUpstream{
		chunks: []string{"réponse"},
		fail:   map[string]error{"capable-m": dispatch.Unavailable("capable-m", http.StatusNotFound, errors.New("not found"))},
	}
	sink := &memSink{}
	e := newEngine(t, testConfig(), up, WithSink(sink))

	res, err := e.Handle(context.Background(), Turn{Utterance: ratioQuestion}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.True(t, res.Substituted)
	assert.Equal(t, "capable-alt", res.Model)

	require.Len(t, sink.recs, 1)
	assert.True(t, sink.recs[0].Substituted)
	assert.Equal(t, "capable-alt", sink.recs[0].Model)
}

func TestHandleCancelledWritesNothing(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	up := &fakeUpstream{chunks: []string{"partial ", "more ", "text"}}
	sink := &memSink{}
	e, err := New(testConfig(), up, zap.New(core), WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got strings.Builder
	_, err = e.Handle(ctx, Turn{Utterance: ratioQuestion, TenantID: "t1"}, func(c string) error {
		got.WriteString(c)
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "partial ", got.String())
	assert.Equal(t, 0, e.ledger.Len())
	assert.Empty(t, sink.recs)
	assert.Equal(t, int64(0), e.CacheStats().Entries)
	assert.Equal(t, 1, logs.FilterMessage("turn cancelled").Len())
}

func TestInvalidateTenant(t *testing.T) {
	up := &fakeUpstream{chunks: []string{"réponse"}}
	e := newEngine(t, testConfig(), up)
	company := "Quelle est la valeur de mon entreprise ?"
	sector := "Quelles sont les tendances du secteur en général ?"

	for _, tenant := range []string{"a", "b"} {
		for _, u := range []string{company, sector} {
			_, err := e.Handle(context.Background(), Turn{Utterance: u, TenantID: tenant}, collect(&strings.Builder{}))
			require.NoError(t, err)
		}
	}
	// the sector answer is shared, so tenant b reused it
	assert.Equal(t, 3, up.callCount())

	assert.Equal(t, 1, e.InvalidateTenant("a"))

	res, err := e.Handle(context.Background(), Turn{Utterance: company, TenantID: "b"}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	res, err = e.Handle(context.Background(), Turn{Utterance: sector, TenantID: "a"}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	res, err = e.Handle(context.Background(), Turn{Utterance: company, TenantID: "a"}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestInvalidateTag(t *testing.T) {
	up := &fakeUpstream{chunks: []string{"réponse"}}
	e := newEngine(t, testConfig(), up)
	_, err := e.Handle(context.Background(), Turn{
		Utterance: ratioQuestion, TenantID: "t1",
		Signal: models.ConversationSignal{SectorCode: "56.10A"},
	}, collect(&strings.Builder{}))
	require.NoError(t, err)

	assert.Equal(t, 0, e.InvalidateTag("sector:47.11"))
	assert.Equal(t, 1, e.InvalidateTag("sector:56.10A"))
}

func TestCacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = false
	up := &fakeUpstream{chunks: []string{"réponse"}}
	e := newEngine(t, cfg, up)

	for range 2 {
		res, err := e.Handle(context.Background(), Turn{Utterance: ratioQuestion}, collect(&strings.Builder{}))
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 2, up.callCount())
	assert.Equal(t, models.CacheStats{}, e.CacheStats())
	assert.Equal(t, 0, e.InvalidateTenant("t1"))
	assert.NoError(t, e.Close())
}

func TestHandleRecordsDuration(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	e := newEngine(t, testConfig(), &fakeUpstream{chunks: []string{"ok"}}, WithClock(clock))

	_, err := e.Handle(context.Background(), Turn{Utterance: ratioQuestion}, collect(&strings.Builder{}))
	require.NoError(t, err)
	recs := e.UsageRecords(models.UsageFilter{})
	require.Len(t, recs, 1)
	assert.Greater(t, recs[0].Duration, time.Duration(0))
	assert.Equal(t, "2026-03-01", recs[0].Timestamp.Format("2006-01-02"))
}

func TestClassify(t *testing.T) {
	e := newEngine(t, testConfig(), &fakeUpstream{})
	j, trivial := e.Classify(ratioQuestion)
	assert.True(t, j.IsRatioQuestion)
	assert.False(t, trivial)

	_, trivial = e.Classify("oui")
	assert.True(t, trivial)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"mot", []string{"mot"}},
		{"deux mots", []string{"deux ", "mots"}},
		{"a  b\n\nc ", []string{"a  ", "b\n\n", "c "}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Chunk(tt.in), "Chunk(%q)", tt.in)
	}
}

func TestChunkConcatenates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zé \n\t]{0,80}`).Draw(t, "s")
		assert.Equal(t, s, strings.Join(Chunk(s), ""))
	})
}
