package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader replays a scripted sequence of frames and a terminal error.
type fakeReader struct {
	frames []fakeFrame
	final  error
}

type fakeFrame struct {
	msgType websocket.MessageType
	data    []byte
}

func (r *fakeReader) Read(_ context.Context) (websocket.MessageType, []byte, error) {
	if len(r.frames) == 0 {
		return 0, nil, r.final
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return f.msgType, f.data, nil
}

func normalClose() error {
	return websocket.CloseError{Code: websocket.StatusNormalClosure}
}

func TestPumpFrames_DeliversTextFrames(t *testing.T) {
	var got [][]byte
	s := NewSource(func(_ context.Context, payload []byte) error {
		got = append(got, payload)
		return nil
	}, nil)

	reader := &fakeReader{
		frames: []fakeFrame{
			{websocket.MessageText, []byte(`{"kind":"chunk"}`)},
			{websocket.MessageText, []byte(`{"kind":"done"}`)},
		},
		final: normalClose(),
	}

	require.NoError(t, s.pumpFrames(context.Background(), reader))
	require.Len(t, got, 2)
	assert.Equal(t, `{"kind":"chunk"}`, string(got[0]))
}

func TestPumpFrames_SkipsBinaryFrames(t *testing.T) {
	var count int
	s := NewSource(func(_ context.Context, _ []byte) error {
		count++
		return nil
	}, nil)

	reader := &fakeReader{
		frames: []fakeFrame{
			{websocket.MessageBinary, []byte{0x01, 0x02}},
			{websocket.MessageText, []byte(`{}`)},
		},
		final: normalClose(),
	}

	require.NoError(t, s.pumpFrames(context.Background(), reader))
	assert.Equal(t, 1, count)
}

func TestPumpFrames_IngestFailureDoesNotEndPump(t *testing.T) {
	var got [][]byte
	s := NewSource(func(_ context.Context, payload []byte) error {
		got = append(got, payload)
		if len(got) == 1 {
			return errors.New("bad frame")
		}
		return nil
	}, nil)

	reader := &fakeReader{
		frames: []fakeFrame{
			{websocket.MessageText, []byte(`broken`)},
			{websocket.MessageText, []byte(`{"kind":"done"}`)},
		},
		final: normalClose(),
	}

	require.NoError(t, s.pumpFrames(context.Background(), reader))
	assert.Len(t, got, 2, "a failing frame must not stop its siblings")
}

func TestPumpFrames_GoingAwayEndsCleanly(t *testing.T) {
	s := NewSource(func(_ context.Context, _ []byte) error { return nil }, nil)
	reader := &fakeReader{final: websocket.CloseError{Code: websocket.StatusGoingAway}}

	assert.NoError(t, s.pumpFrames(context.Background(), reader))
}

func TestPumpFrames_TransportErrorPropagates(t *testing.T) {
	s := NewSource(func(_ context.Context, _ []byte) error { return nil }, nil)
	readErr := errors.New("connection reset")
	reader := &fakeReader{final: readErr}

	assert.ErrorIs(t, s.pumpFrames(context.Background(), reader), readErr)
}

func TestPumpFrames_ContextCancellationEndsCleanly(t *testing.T) {
	s := NewSource(func(_ context.Context, _ []byte) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &fakeReader{final: ctx.Err()}

	assert.NoError(t, s.pumpFrames(ctx, reader))
}
