package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectionary/eoprobe/internal/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesDatabaseInNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "catalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestUpdate_CreatesAndReadsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "org.example.app", func(r *catalog.Record) error {
		r.Program = &catalog.Program{XMIR: "target/app.xmir"}
		r.Attrs = map[string]string{"eo": "src/app.eo"}
		return nil
	})
	require.NoError(t, err)

	r, ok, err := s.Get(ctx, "org.example.app")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "target/app.xmir", r.Program.XMIR)
	require.False(t, r.Program.IsProbed())
	require.Nil(t, r.Dependency)
	require.Equal(t, "src/app.eo", r.Attrs["eo"])

	unprobed, err := s.Select(ctx, catalog.Unprobed)
	require.NoError(t, err)
	require.Len(t, unprobed, 1)
}

func TestUpdate_MarksProbedAndDiscovers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "app", func(r *catalog.Record) error {
		r.Program = &catalog.Program{XMIR: "app.xmir"}
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update(ctx, "x.y", func(r *catalog.Record) error {
		r.Discover("app.xmir", catalog.DefaultVersion)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update(ctx, "app", func(r *catalog.Record) error {
		r.MarkProbed(1)
		return nil
	})
	require.NoError(t, err)

	app, _, err := s.Get(ctx, "app")
	require.NoError(t, err)
	require.True(t, app.Program.IsProbed())
	require.Equal(t, 1, *app.Program.Probed)

	dep, _, err := s.Get(ctx, "x.y")
	require.NoError(t, err)
	require.Equal(t, catalog.DefaultVersion, dep.Dependency.Version)
	require.Equal(t, "app.xmir", dep.Dependency.ProbedAt)

	unprobed, err := s.Select(ctx, catalog.Unprobed)
	require.NoError(t, err)
	require.Empty(t, unprobed)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestUpdate_ErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := s.Update(ctx, "x.y", func(r *catalog.Record) error {
		r.Discover("a.xmir", catalog.DefaultVersion)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := s.Get(ctx, "x.y")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdate_RejectsBlankNames(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", " ", "\t\n"} {
		_, err := s.Update(context.Background(), name, func(r *catalog.Record) error {
			r.Discover("a.xmir", catalog.DefaultVersion)
			return nil
		})
		require.ErrorIs(t, err, catalog.ErrInvalidRecord, "name %q", name)
	}
	n, err := s.Len(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "nothing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdate_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "counter", func(r *catalog.Record) error {
				n := 0
				if r.Program.IsProbed() {
					n = *r.Program.Probed
				}
				r.MarkProbed(n + 1)
				return nil
			})
			require.NoError(t, err)
			_, err = s.Update(ctx, fmt.Sprintf("dep-%02d", i), func(r *catalog.Record) error {
				r.Discover("x.xmir", catalog.DefaultVersion)
				return nil
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	r, _, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, 20, *r.Program.Probed)

	all, err := s.Select(ctx, catalog.All)
	require.NoError(t, err)
	require.Len(t, all, 21)
	require.Equal(t, "counter", all[0].Name)
}
