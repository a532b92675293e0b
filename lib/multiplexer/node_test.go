package multiplexer

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := New(nil, &buf)

	ctx := context.Background()
	require.NoError(t, w.WriteMessage(ctx, []byte("first")))
	require.NoError(t, w.WriteMessageWithSequence(ctx, 42, []byte("second")))
	require.NoError(t, w.WriteMessage(ctx, nil))

	r := New(&buf, nil)
	ch, err := r.ReadMessage(ctx)
	require.NoError(t, err)

	var got []*Message
	for m := range ch {
		got = append(got, m)
	}
	require.Len(t, got, 3)
	assert.Equal(t, uint32(1), got[0].Sequence)
	assert.Equal(t, "first", string(got[0].Data))
	assert.Equal(t, uint32(42), got[1].Sequence)
	assert.Equal(t, "second", string(got[1].Data))
	assert.Empty(t, got[2].Data)
}

func TestNode_ReadMessageOnce(t *testing.T) {
	n := New(bytes.NewReader(nil), nil)
	_, err := n.ReadMessage(context.Background())
	require.NoError(t, err)
	_, err = n.ReadMessage(context.Background())
	assert.Error(t, err)
}

func TestNode_TooLarge(t *testing.T) {
	n := New(nil, io.Discard)
	err := n.WriteMessage(context.Background(), make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestNode_CorruptFrame(t *testing.T) {
	r := New(bytes.NewReader([]byte{0xFF, 0, 0, 0, 1, 0, 0, 0, 0}), nil)
	ch, err := r.ReadMessage(context.Background())
	require.NoError(t, err)

	m, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, FrameTypeError, m.Type)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestNode_ConcurrentWriters(t *testing.T) {
	pr, pw := io.Pipe()
	w := New(nil, pw)
	r := New(pr, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := r.ReadMessage(ctx)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.WriteMessage(ctx, bytes.Repeat([]byte{'x'}, 4096)))
		}()
	}
	go func() {
		wg.Wait()
		pw.Close()
	}()

	seen := map[uint32]bool{}
	for m := range ch {
		assert.Equal(t, FrameTypeMessage, m.Type)
		assert.Len(t, m.Data, 4096)
		seen[m.Sequence] = true
	}
	assert.Len(t, seen, writers)
}
