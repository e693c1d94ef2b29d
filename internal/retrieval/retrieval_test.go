package retrieval

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

type fakeStore struct {
	results   []Snippet
	searchErr error
	insertErr error
	gotK      int
	gotMin    float64
	inserted  []MemorySnippet
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float64, k int, minSimilarity float64) ([]Snippet, error) {
	f.gotK, f.gotMin = k, minSimilarity
	return f.results, f.searchErr
}

func (f *fakeStore) Insert(_ context.Context, s MemorySnippet) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, s)
	return nil
}

func newTestRetriever(t *testing.T, e Embedder, s Store) *Retriever {
	t.Helper()
	r, err := New(Config{
		Embedder: e,
		Store:    s,
		Logger:   logger.NewLogger(logger.Config{Output: io.Discard}),
		Now:      func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return r
}

func TestRetrieve(t *testing.T) {
	many := []Snippet{
		{Content: "a", Similarity: 0.91}, {Content: "b", Similarity: 0.55},
		{Content: "c", Similarity: 0.99}, {Content: "d", Similarity: 0.7},
		{Content: "e", Similarity: 0.6}, {Content: "f", Similarity: 0.8},
		{Content: "low", Similarity: 0.3},
	}

	tests := []struct {
		name      string
		owner     string
		results   []Snippet
		embedErr  error
		searchErr error
		want      []string
	}{
		{name: "bounded and sorted", owner: "ana", results: many, want: []string{"c", "a", "f", "d", "e"}},
		{name: "below threshold dropped", owner: "ana", results: []Snippet{{Content: "x", Similarity: 0.49}}, want: nil},
		{name: "embed failure", owner: "ana", results: many, embedErr: errors.New("rate limited"), want: nil},
		{name: "search failure", owner: "ana", searchErr: errors.New("relation does not exist"), want: nil},
		{name: "no owner", results: many, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{results: tt.results, searchErr: tt.searchErr}
			r := newTestRetriever(t, &fakeEmbedder{err: tt.embedErr}, store)

			got := r.Retrieve(context.Background(), tt.owner, "onde é a reunião?")
			var contents []string
			for _, s := range got {
				contents = append(contents, s.Content)
				assert.GreaterOrEqual(t, s.Similarity, DefaultMinSimilarity)
			}
			assert.Equal(t, tt.want, contents)
			assert.LessOrEqual(t, len(got), DefaultTopK)
		})
	}
}

func TestRetrieve_PassesBoundsToStore(t *testing.T) {
	store := &fakeStore{}
	r := newTestRetriever(t, &fakeEmbedder{}, store)
	r.Retrieve(context.Background(), "ana", "oi")

	assert.Equal(t, DefaultTopK, store.gotK)
	assert.InDelta(t, DefaultMinSimilarity, store.gotMin, 1e-9)
}

func TestNew_ClampsBounds(t *testing.T) {
	tests := []struct {
		name    string
		topK    int
		minSim  float64
		wantK   int
		wantMin float64
	}{
		{name: "zero values", wantK: DefaultTopK, wantMin: DefaultMinSimilarity},
		{name: "too many snippets", topK: 20, minSim: 0.5, wantK: DefaultTopK, wantMin: 0.5},
		{name: "threshold too loose", topK: 5, minSim: 0.1, wantK: 5, wantMin: DefaultMinSimilarity},
		{name: "tighter bounds kept", topK: 3, minSim: 0.8, wantK: 3, wantMin: 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			r, err := New(Config{
				Embedder:      &fakeEmbedder{},
				Store:         store,
				Logger:        logger.NewLogger(logger.Config{Output: io.Discard}),
				TopK:          tt.topK,
				MinSimilarity: tt.minSim,
			})
			require.NoError(t, err)
			r.Retrieve(context.Background(), "ana", "oi")
			assert.Equal(t, tt.wantK, store.gotK)
			assert.InDelta(t, tt.wantMin, store.gotMin, 1e-9)
		})
	}
}

func TestRemember(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	r := newTestRetriever(t, embedder, store)

	r.Remember(context.Background(), "ana", "Usuário: oi\nJarvis: olá")
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "ana", store.inserted[0].Owner)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, store.inserted[0].Embedding)
	assert.Equal(t, 2026, store.inserted[0].CreatedAt.Year())

	r.Remember(context.Background(), "", "ignored")
	r.Remember(context.Background(), "ana", "   ")
	assert.Len(t, embedder.calls, 1)
}

func TestRemember_FailuresAreSoft(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("boom")}
	r := newTestRetriever(t, &fakeEmbedder{}, store)
	assert.NotPanics(t, func() { r.Remember(context.Background(), "ana", "x") })

	r = newTestRetriever(t, &fakeEmbedder{err: errors.New("boom")}, &fakeStore{})
	assert.NotPanics(t, func() { r.Remember(context.Background(), "ana", "x") })
}

func TestContext(t *testing.T) {
	assert.Equal(t, "", Context(nil))
	assert.Equal(t, "- prefere reuniões pela manhã\n- esposa se chama Clara",
		Context([]Snippet{{Content: "prefere reuniões pela manhã"}, {Content: "esposa se chama Clara"}}))
}
