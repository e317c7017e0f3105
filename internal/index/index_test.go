package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blevesearch/bleve/v2/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func searchKeys(t *testing.T, ix *Index, q string) []string {
	t.Helper()
	res, err := ix.Search(context.Background(), q, 10)
	require.NoError(t, err)
	return res.Keys()
}

func TestSearch_FindsIndexedTerm(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	// Given a single indexed document
	require.NoError(t, ix.AddOrReplace(ctx, "notes.txt", "alpha beta gamma"))

	// Then present terms match and absent terms do not
	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "beta"))
	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "BETA"))
	assert.Empty(t, searchKeys(t, ix, "delta"))
}

func TestAddOrReplace_ReplacesContent(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	require.NoError(t, ix.AddOrReplace(ctx, "x.txt", "one"))
	require.NoError(t, ix.AddOrReplace(ctx, "x.txt", "two"))

	assert.Empty(t, searchKeys(t, ix, "one"))
	assert.Equal(t, []string{"x.txt"}, searchKeys(t, ix, "two"))

	n, err := ix.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestDelete_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	require.NoError(t, ix.AddOrReplace(ctx, "a.txt", "kiwi mango"))
	require.NoError(t, ix.Delete(ctx, "a.txt"))
	require.NoError(t, ix.Delete(ctx, "a.txt"))
	require.NoError(t, ix.Delete(ctx, "never-indexed.txt"))

	assert.Empty(t, searchKeys(t, ix, "kiwi"))
}

func TestSearch_DefaultOperatorIsOR(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	require.NoError(t, ix.AddOrReplace(ctx, "a.txt", "apple banana"))
	require.NoError(t, ix.AddOrReplace(ctx, "b.txt", "banana cherry"))
	require.NoError(t, ix.AddOrReplace(ctx, "c.txt", "cherry durian"))

	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, searchKeys(t, ix, "apple durian"))
	assert.Equal(t, []string{"b.txt"}, searchKeys(t, ix, "banana AND cherry"))
	assert.Equal(t, []string{"a.txt"}, searchKeys(t, ix, "banana NOT cherry"))
}

func TestSearch_RanksBetterMatchesFirst(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	require.NoError(t, ix.AddOrReplace(ctx, "both.txt", "rust golang"))
	require.NoError(t, ix.AddOrReplace(ctx, "one.txt", "golang"))

	keys := searchKeys(t, ix, "rust golang")
	require.Len(t, keys, 2)
	assert.Equal(t, "both.txt", keys[0])
}

func TestSearch_TiesBreakByKey(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	for _, k := range []string{"c.txt", "a.txt", "b.txt"} {
		require.NoError(t, ix.AddOrReplace(ctx, k, "identical words"))
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, searchKeys(t, ix, "identical"))
}

func TestSearch_EmptyAndStopwordQueries(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)
	require.NoError(t, ix.AddOrReplace(ctx, "a.txt", "the quick fox is here"))

	for _, q := range []string{"", "   ", "the", "is a", "AND OR", "NOT quick", "x"} {
		res, err := ix.Search(ctx, q, 10)
		require.NoError(t, err, q)
		assert.Empty(t, res.Hits, q)
		assert.NotNil(t, res.Hits, q)
	}
}

func TestSearch_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, ix.AddOrReplace(ctx, fmt.Sprintf("doc%d.txt", i), "shared"))
	}

	res, err := ix.Search(ctx, "shared", 2)
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, uint64(5), res.TotalHits)
}

func TestConcurrentMutationsOnDistinctKeys(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%02d.txt", i)
			assert.NoError(t, ix.AddOrReplace(ctx, key, "concurrent"))
			if i%2 == 0 {
				assert.NoError(t, ix.Delete(ctx, key))
			}
		}(i)
	}
	wg.Wait()

	keys, err := ix.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 10)
	assert.Equal(t, "k01.txt", keys[0])
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	ix, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, ix.AddOrReplace(ctx, "notes.txt", "persistent words"))
	require.NoError(t, ix.Close())
	require.NoError(t, ix.Close())

	ix, err = Open(dir)
	require.NoError(t, err)
	defer ix.Close()
	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "persistent"))
}

func TestOpen_RecreatesCorruptIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), []byte("{not json"), 0o644))

	ix, err := Open(dir)
	require.NoError(t, err)
	defer ix.Close()

	n, err := ix.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedIndex(t *testing.T) {
	ix, err := Open("")
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	ctx := context.Background()
	assert.ErrorIs(t, ix.AddOrReplace(ctx, "a.txt", "x"), ErrClosed)
	assert.ErrorIs(t, ix.Delete(ctx, "a.txt"), ErrClosed)
	_, err = ix.Search(ctx, "x", 10)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ix.Ping(ctx), ErrClosed)
}

func TestParseQuery(t *testing.T) {
	plan := ParseQuery("Alpha AND beta NOT gamma delta")
	assert.Equal(t, OpAND, plan.Operator)
	assert.Equal(t, []string{"Alpha", "beta", "delta"}, plan.Terms)
	assert.Equal(t, []string{"gamma"}, plan.ExcludeTerms)

	plan = ParseQuery("one two")
	assert.Equal(t, OpOR, plan.Operator)
	assert.Equal(t, "OR", plan.Operator.String())

	plan = ParseQuery("beta and delta not gamma Or x")
	assert.Equal(t, OpOR, plan.Operator)
	assert.Equal(t, []string{"beta", "and", "delta", "not", "gamma", "Or", "x"}, plan.Terms)
	assert.Empty(t, plan.ExcludeTerms)
}

func TestSearch_LowercaseOperatorWordsAreTerms(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)
	require.NoError(t, ix.AddOrReplace(ctx, "notes.txt", "alpha beta gamma"))

	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "beta delta"))
	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "beta and delta"))
	assert.Equal(t, []string{"notes.txt"}, searchKeys(t, ix, "beta not gamma"))
	assert.Empty(t, searchKeys(t, ix, "beta AND delta"))
	assert.Empty(t, searchKeys(t, ix, "beta NOT gamma"))
}

func TestTermsFilter(t *testing.T) {
	ix := newMemIndex(t)
	tokens := ix.analyzer.Analyze([]byte("The Quick brown FOX, a yet-unseen x"))
	var terms []string
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	assert.Equal(t, []string{"quick", "brown", "fox", "unseen"}, terms)
}

func TestTermsFilter_RegisteredOnce(t *testing.T) {
	// init already holds the name; a second registration must be refused
	err := registry.RegisterTokenFilter(TermsFilterName, termsFilterConstructor)
	assert.ErrorContains(t, err, TermsFilterName)
}
