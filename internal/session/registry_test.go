package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSession(t *testing.T) {
	r := NewRegistry(12)
	s := r.Create()
	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteClosesSession(t *testing.T) {
	r := NewRegistry(12)
	s := r.Create()
	r.Delete(s.ID)
	r.Delete(s.ID)

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed after delete")
	}
	assert.Equal(t, 0, r.Len())
}

func TestUpdateContext(t *testing.T) {
	r := NewRegistry(12)
	s := r.Create()
	v, err := r.UpdateContext(s.ID, "speak slowly")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	_, err = r.UpdateContext("nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIsSafeUnderConcurrentMutation(t *testing.T) {
	r := NewRegistry(12)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := r.Create()
				r.Delete(s.ID)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for _, s := range r.List() {
					_ = s.State()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
