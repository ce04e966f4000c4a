package appstate

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	t.Parallel()
	s := NewStore()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("frequency", 1.5)
	v, ok := s.Get("frequency")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	s.Set("frequency", 2.0)
	v, _ = s.Get("frequency")
	assert.Equal(t, 2.0, v)

	assert.Equal(t, []string{"frequency"}, s.Keys())
	assert.Equal(t, 1, s.Len())
}

func TestStore_SetDefault(t *testing.T) {
	t.Parallel()
	s := NewStore()

	s.SetDefault("comment", "")
	s.Set("comment", "edited")
	s.SetDefault("comment", "")

	v, _ := s.Get("comment")
	assert.Equal(t, "edited", v, "SetDefault never clobbers a live value")
}

func TestStore_DeepCopyIsolation(t *testing.T) {
	t.Parallel()
	s := NewStore()

	in := map[string]any{"columns": []any{"a", "b"}}
	s.Set("echo", in)

	// Mutating the caller's map after Set must not leak into the store.
	in["columns"] = []any{"tampered"}
	v, _ := s.Get("echo")
	assert.Equal(t, map[string]any{"columns": []any{"a", "b"}}, v)

	// Mutating a returned value must not leak back either.
	out := v.(map[string]any)
	out["columns"] = []any{"tampered again"}
	v2, _ := s.Get("echo")
	assert.Equal(t, map[string]any{"columns": []any{"a", "b"}}, v2)
}

func TestStore_SnapshotConsistency(t *testing.T) {
	t.Parallel()
	s := NewStore()

	// Writers keep the invariant left == right. A torn snapshot would
	// observe the pair mid-update.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			s.Set("left", i)
			s.Set("right", i)
		}
	}()

	for range 1000 {
		snap := s.Snapshot()
		left, lok := snap["left"]
		right, rok := snap["right"]
		if !lok || !rok {
			continue
		}
		l := left.(int)
		r := right.(int)
		// left is written first, so it may be at most one ahead.
		assert.LessOrEqual(t, l-r, 1)
		assert.GreaterOrEqual(t, l-r, 0)
	}
	close(stop)
	wg.Wait()
}

func TestStore_SnapshotIsImmutable(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Set("gain", 0.5)

	snap := s.Snapshot()
	snap["gain"] = 99.0
	snap["injected"] = true

	v, _ := s.Get("gain")
	assert.Equal(t, 0.5, v)
	_, ok := s.Get("injected")
	assert.False(t, ok)
}

func TestStore_SnapshotMarshals(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Set("frequency", 1.0)
	s.Set("comment", "hello")
	s.Set("echo", map[string]any{"x": 1.0})

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, "hello", round["comment"])
	assert.Equal(t, map[string]any{"x": 1.0}, round["echo"])
}

func TestStore_ConcurrentSetters(t *testing.T) {
	t.Parallel()
	s := NewStore()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("widget_%d", w)
			for i := range 500 {
				s.Set(key, i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, s.Len())
	for w := range 8 {
		v, ok := s.Get(fmt.Sprintf("widget_%d", w))
		require.True(t, ok)
		assert.Equal(t, 499, v)
	}
}
