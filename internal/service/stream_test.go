package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamLateReaderSeesEverything(t *testing.T) {
	s := newStream()
	s.publish(Event{Type: EventProgress, Phase: PhaseClassify})
	s.publish(Event{Type: EventComplete, ResultsCount: 2})
	s.publish(Event{Type: EventProgress, Phase: PhaseBuild})

	r := s.Reader()
	ctx := context.Background()

	e, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseClassify, e.Phase)

	e, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventComplete, e.Type)

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "nothing follows the terminal event")
	assert.Len(t, s.Events(), 2)
}

func TestStreamReaderWaitsForEvents(t *testing.T) {
	s := newStream()
	r := s.Reader()

	var got []Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			e, err := r.Next(context.Background())
			if err != nil {
				return
			}
			got = append(got, e)
		}
	}()

	for i := 0; i < 5; i++ {
		s.publish(Event{Type: EventProgress, Current: i, Total: 5})
	}
	s.publish(Event{Type: EventComplete, ResultsCount: 5})
	wg.Wait()

	require.Len(t, got, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, got[i].Current)
	}
	assert.True(t, got[5].Terminal())
}

func TestStreamReaderHonoursContext(t *testing.T) {
	s := newStream()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Reader().Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventJSON(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected string
	}{
		{
			name:     "progress",
			event:    Event{Type: EventProgress, Phase: PhaseBuild, Message: "Building bracket", Current: 1, Total: 3, CategoryName: "Senior - -70kg - Black"},
			expected: `{"type":"progress","phase":"build","message":"Building bracket","current":1,"total":3,"categoryName":"Senior - -70kg - Black"}`,
		},
		{
			name:     "complete",
			event:    Event{Type: EventComplete, ResultsCount: 4},
			expected: `{"type":"complete","resultsCount":4}`,
		},
		{
			name:     "error",
			event:    Event{Type: EventError, Message: "no category could be built"},
			expected: `{"type":"error","message":"no category could be built"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(data))
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()

	unlock, ok := k.TryLock("a")
	require.True(t, ok)

	_, ok = k.TryLock("a")
	assert.False(t, ok, "a is held")

	unlockB, ok := k.TryLock("b")
	require.True(t, ok, "other keys are independent")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		release := k.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("Lock returned while a was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Lock never returned")
	}

	require.Eventually(t, func() bool { return k.len() == 0 }, time.Second, 5*time.Millisecond)
}
