package relay_test

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](t *testing.T, c *relay.Collection[T]) ([]T, error) {
	t.Helper()
	var got []T
	for v, err := range c.All(context.Background()) {
		if err != nil {
			return got, err
		}
		got = append(got, v)
	}
	return got, nil
}

func TestCollection_All(t *testing.T) {
	t.Parallel()

	t.Run("each traversal issues a new request", func(t *testing.T) {
		t.Parallel()
		produce, calls, closes := staticProducer(sseBody("a", "b", "[DONE]"))
		c := relay.NewCollection(produce, splitDecoder)
		assert.Equal(t, int32(0), calls.Load())

		first, err := collect(t, c)
		require.NoError(t, err)
		second, err := collect(t, c)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, first)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, int32(2), closes.Load())
	})

	t.Run("break releases the response", func(t *testing.T) {
		t.Parallel()
		produce, _, closes := staticProducer(sseBody("1", "2", "3", "4", "5"))
		c := relay.NewCollection(produce, splitDecoder)

		var got []string
		for v, err := range c.All(context.Background()) {
			require.NoError(t, err)
			got = append(got, v)
			if len(got) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"1", "2"}, got)
		assert.Equal(t, int32(1), closes.Load())

		require.NoError(t, c.Close())
		assert.Equal(t, int32(1), closes.Load())
	})

	t.Run("yields a terminal error once", func(t *testing.T) {
		t.Parallel()
		produce, _, closes := staticProducer(sseBody("a", "bad", "c"))
		c := relay.NewCollection(produce, splitDecoder)

		var (
			got  []string
			errs []error
		)
		for v, err := range c.All(context.Background()) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			got = append(got, v)
		}
		assert.Equal(t, []string{"a"}, got)
		require.Len(t, errs, 1)
		var decErr *relay.DecodeError
		assert.ErrorAs(t, errs[0], &decErr)
		assert.Equal(t, int32(1), closes.Load())
	})
}

func TestCollection_Response(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	produce := func(ctx context.Context) (relay.Response, error) {
		n := calls.Add(1)
		return &mock.Response{
			HeaderFn: func() http.Header {
				return http.Header{"X-Call": {strconv.Itoa(int(n))}}
			},
			BodyFn: func() io.Reader { return strings.NewReader(sseBody("a")) },
		}, nil
	}
	c := relay.NewCollection(produce, splitDecoder)
	assert.Nil(t, c.Response())

	_, err := collect(t, c)
	require.NoError(t, err)
	require.NotNil(t, c.Response())
	assert.Equal(t, "1", c.Response().Header().Get("X-Call"))

	// A cursor that has not issued its request does not replace it.
	cur := c.Cursor()
	assert.Equal(t, "1", c.Response().Header().Get("X-Call"))

	_, err = cur.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", c.Response().Header().Get("X-Call"))
	require.NoError(t, cur.Close())
}

func TestCollection_Close(t *testing.T) {
	t.Parallel()

	t.Run("releases abandoned cursors", func(t *testing.T) {
		t.Parallel()
		produce, calls, closes := staticProducer(sseBody("a", "b", "c"))
		c := relay.NewCollection(produce, splitDecoder)

		started := c.Cursor()
		_, err := started.Next(context.Background())
		require.NoError(t, err)
		idle := c.Cursor()

		require.NoError(t, c.Close())
		assert.Equal(t, relay.CursorClosed, started.State())
		assert.Equal(t, relay.CursorClosed, idle.State())
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int32(1), closes.Load())

		require.NoError(t, c.Close())
		assert.Equal(t, int32(1), closes.Load())
	})

	t.Run("later cursors are closed", func(t *testing.T) {
		t.Parallel()
		produce, calls, _ := staticProducer(sseBody("a"))
		c := relay.NewCollection(produce, splitDecoder)
		require.NoError(t, c.Close())

		cur := c.Cursor()
		_, err := cur.Next(context.Background())
		assert.ErrorIs(t, err, relay.ErrCursorClosed)

		got, err := collect(t, c)
		assert.Empty(t, got)
		assert.ErrorIs(t, err, relay.ErrCursorClosed)
		assert.Equal(t, int32(0), calls.Load())
	})
}

func TestCollection_CloseAfterPartialConsumption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		consume   int
		wantCalls int32
		want      []string
	}{
		{name: "two of five", consume: 2, wantCalls: 1, want: []string{"1", "2"}},
		{name: "one of five", consume: 1, wantCalls: 1, want: []string{"1"}},
		{name: "never started", consume: 0, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			produce, calls, closes := staticProducer(sseBody("1", "2", "3", "4", "5", "[DONE]"))
			c := relay.NewCollection(produce, splitDecoder)
			cur := c.Cursor()

			var got []string
			for range tt.consume {
				v, err := cur.Next(context.Background())
				require.NoError(t, err)
				got = append(got, v)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int32(0), closes.Load())

			require.NoError(t, c.Close())
			assert.Equal(t, relay.CursorClosed, cur.State())
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, tt.wantCalls, closes.Load())
		})
	}
}

func TestCollection_SharedDecoderOutput(t *testing.T) {
	t.Parallel()

	// The decoder hands out the same slices on every call.
	table := map[string][]string{
		"f1": {"a", "b"},
		"f2": {"c"},
	}
	decode := func(f relay.Frame) ([]string, error) {
		return table[string(f.Data)], nil
	}
	produce, calls, _ := staticProducer(sseBody("f1", "f2", "[DONE]"))
	c := relay.NewCollection(produce, decode)

	first, err := collect(t, c)
	require.NoError(t, err)
	second, err := collect(t, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, map[string][]string{"f1": {"a", "b"}, "f2": {"c"}}, table)
}
