package suballoc_test

import (
	"context"
	"testing"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/suballoc"
)

// Benchmark_Manager_AllocFree benchmarks the uncontended alloc/free path.
func Benchmark_Manager_AllocFree(b *testing.B) {
	m, err := suballoc.New(1<<20, 256)
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		s, err := m.Alloc(ctx, 4096, suballoc.Uninterruptible)
		if err != nil {
			b.Fatal(err)
		}
		m.Free(s, nil)
	}
}

// Benchmark_Manager_FencedFree benchmarks a free that is completed from the
// fence callback.
func Benchmark_Manager_FencedFree(b *testing.B) {
	m, err := suballoc.New(1<<20, 256)
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()
	tl := fence.NewTimeline("bench")

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		s, err := m.Alloc(ctx, 4096, suballoc.Uninterruptible)
		if err != nil {
			b.Fatal(err)
		}
		f := tl.Next()
		m.Free(s, f)
		_ = f.Signal()
		f.Release()
	}
}

// Benchmark_Manager_Parallel benchmarks contended allocation with frees
// racing through the idle list.
func Benchmark_Manager_Parallel(b *testing.B) {
	m, err := suballoc.New(1<<22, 256)
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			s, err := m.Alloc(ctx, 16<<10, suballoc.Uninterruptible)
			if err != nil {
				b.Error(err)
				return
			}
			m.FreeNoWait(s, nil)
		}
	})
}
