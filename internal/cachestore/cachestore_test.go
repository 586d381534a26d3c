package cachestore

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.False(t, s.Exists(5))
	require.NoError(t, s.Put(5, []byte("hello")))
	require.True(t, s.Exists(5))

	data, ok, err := s.Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)

	size, ok, err := s.GetSize(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 5, size)
}

func TestGetMissDoesNotCreateFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Get(999)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, s.Exists(999))
}

func TestGetOrFillSingleFlight(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	var calls int64
	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make([]error, n)

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			data, _, err := s.GetOrFill(7, func(id int64) ([]byte, error) {
				atomic.AddInt64(&calls, 1)
				return []byte("origin-bytes"), nil
			})
			results[i] = data
			errs[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt64(&calls))
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []byte("origin-bytes"), results[i])
	}

	data, ok, err := s.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("origin-bytes"), data)
}

func TestGetOrFillPropagatesError(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	wantErr := errFixture{}
	_, _, err = s.GetOrFill(42, func(id int64) ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.False(t, s.Exists(42))
}

type errFixture struct{}

func (errFixture) Error() string { return "fixture upstream failure" }

func TestGetOrFillWarmHitDoesNotCallFill(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(3, []byte("warm")))

	called := false
	data, wasHit, err := s.GetOrFill(3, func(id int64) ([]byte, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, wasHit)
	require.False(t, called)
	require.Equal(t, []byte("warm"), data)
}
