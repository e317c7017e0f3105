package index

import (
	"context"
	"fmt"
	"testing"
)

var benchTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func benchIndex(b *testing.B, docs int) *Index {
	b.Helper()
	ix, err := Open("")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { ix.Close() })

	ctx := context.Background()
	for i := 0; i < docs; i++ {
		text := fmt.Sprintf("this document covers %s %s\n%s in production systems",
			benchTerms[i%len(benchTerms)], benchTerms[(i+2)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)])
		if err := ix.AddOrReplace(ctx, fmt.Sprintf("doc-%d.txt", i), text); err != nil {
			b.Fatal(err)
		}
	}
	return ix
}

// BenchmarkAddOrReplace measures indexing throughput at various pre-loaded
// corpus sizes.
func BenchmarkAddOrReplace(b *testing.B) {
	for _, preload := range []int{100, 1000} {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			ix := benchIndex(b, preload)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := ix.AddOrReplace(ctx, fmt.Sprintf("bench-%d.txt", i), "benchmark document body for measuring indexing throughput"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	ix := benchIndex(b, 5000)
	ctx := context.Background()
	queries := []string{"search", "query engine", "indexing NOT ranking"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ix.Search(ctx, queries[i%len(queries)], 10); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchParallel measures concurrent read throughput.
func BenchmarkSearchParallel(b *testing.B) {
	ix := benchIndex(b, 5000)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := ix.Search(ctx, benchTerms[i%len(benchTerms)], 10); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
