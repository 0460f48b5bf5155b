package partialconcat

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/journaldconcat/errors"
	"github.com/c360/journaldconcat/message"
	"github.com/c360/journaldconcat/testutil"
)

func TestFilterStream_PassesCompleteRecordsThrough(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		map[string]any{"message": "a"},
		map[string]any{"message": "b"},
	)
	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)

	assert.Equal(t, in, out)
	assert.Empty(t, f.Pending())
}

func TestFilterStream_MergesFragments(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		testutil.DockerRecord("abc", "m1", "true"),
		testutil.DockerRecord("abc", "m2", "true"),
		testutil.DockerRecord("abc", "m3", ""),
	)
	in[0].Record["source"] = "stdout"

	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	merged := out[0]
	assert.Equal(t, in[2].Time, merged.Time, "emitted at the completing record's time")
	assert.Equal(t, message.Record{
		"container_id":   "abc",
		"container_name": "/app-abc",
		"message":        "m1m2m3",
		"source":         "stdout",
	}, merged.Record)
	assert.NotContains(t, merged.Record, DefaultMatchKey)

	assert.Empty(t, f.Pending())
	assert.Equal(t, "m1", in[0].Record["message"], "inputs are not modified")
}

func TestFilterStream_CompletingRecordFieldsDropped(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		testutil.DockerRecord("abc", "m1", "true"),
		testutil.DockerRecord("abc", "m2", ""),
	)
	in[0].Record["priority"] = "6"
	in[1].Record["priority"] = "3"
	in[1].Record["exit_code"] = 1

	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "6", out[0].Record["priority"], "first fragment's fields win")
	assert.NotContains(t, out[0].Record, "exit_code")
	assert.Equal(t, "m1m2", out[0].Record["message"])
}

func TestFilterStream_FragmentsSpanBatches(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())
	ctx := context.Background()

	out, err := f.FilterStream(ctx, "docker.app", entries(testutil.DockerRecord("abc", "first ", "true")))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, map[string]int{"docker.app:abc": 1}, f.Pending())

	out, err = f.FilterStream(ctx, "docker.app", entries(testutil.DockerRecord("abc", "second", "")))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "first second", out[0].Record["message"])
}

func TestFilterStream_InterleavedStreams(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		testutil.DockerRecord("1", "a1", "true"),
		testutil.DockerRecord("2", "b1", "true"),
		testutil.DockerRecord("1", "a2", "true"),
		testutil.DockerRecord("2", "b2", ""),
		testutil.DockerRecord("1", "a3", ""),
	)
	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "b1b2", out[0].Record["message"], "first completion first")
	assert.Equal(t, "2", out[0].Record["container_id"])
	assert.Equal(t, "a1a2a3", out[1].Record["message"])
	assert.Equal(t, "1", out[1].Record["container_id"])
}

func TestFilterStream_SameContainerDifferentTags(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())
	ctx := context.Background()

	_, err := f.FilterStream(ctx, "docker.a", entries(testutil.DockerRecord("abc", "a1", "true")))
	require.NoError(t, err)

	out, err := f.FilterStream(ctx, "docker.b", entries(testutil.DockerRecord("abc", "b", "")))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Record["message"], "tag is part of the identity")
	assert.Equal(t, map[string]int{"docker.a:abc": 1}, f.Pending())
}

func TestFilterStream_MissingIdentityShareOneStream(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		map[string]any{"message": "x", "container_partial_message": "true"},
		map[string]any{"message": "y"},
	)
	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "xy", out[0].Record["message"])
	assert.Contains(t, f.LastActivity(), "docker.app:")
}

func TestFilterStream_NonStringText(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	in := entries(
		map[string]any{"container_id": "abc", "message": float64(42), "container_partial_message": "true"},
		map[string]any{"container_id": "abc", "container_partial_message": "true"},
		map[string]any{"container_id": "abc", "message": nil},
	)
	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "42", out[0].Record["message"])
}

func TestFilterStream_CustomKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Key = "log"
	cfg.MatchKey = "partial"
	cfg.StreamIdentityKey = "pod"
	f := newTestFilter(t, cfg, newRecordingRouter())

	in := entries(
		map[string]any{"pod": "p1", "log": "he", "partial": true},
		map[string]any{"pod": "p1", "log": "llo", "partial": false},
	)
	out, err := f.FilterStream(context.Background(), "k8s", in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, message.Record{"pod": "p1", "log": "hello"}, out[0].Record)
}

func TestFilterStream_DiagnosticTagsBypassState(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())
	ctx := context.Background()

	_, err := f.FilterStream(ctx, "docker.app", entries(testutil.DockerRecord("abc", "pending", "true")))
	require.NoError(t, err)

	for _, tag := range []string{"fluent.info", "fluent.warn", "fluent.error"} {
		in := entries(
			testutil.DockerRecord("abc", "diagnostic", "true"),
			testutil.DockerRecord("abc", "done", ""),
		)
		out, err := f.FilterStream(ctx, tag, in)
		require.NoError(t, err)
		assert.Equal(t, in, out, tag)
		assert.NotContains(t, f.LastActivity(), tag+":abc")
	}

	assert.Equal(t, map[string]int{"docker.app:abc": 1}, f.Pending())
	assert.Len(t, f.LastActivity(), 1)
}

func TestFilterStream_DiagnosticPatternIsAnchored(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	for _, tag := range []string{"fluent.information", "app.fluent.info", "fluent.info.x"} {
		out, err := f.FilterStream(context.Background(), tag,
			entries(testutil.DockerRecord("abc", "x", "true")))
		require.NoError(t, err)
		assert.Empty(t, out, "%s is not a diagnostic tag", tag)
	}
}

func TestFilterStream_RecordFaultGoesToErrorRoute(t *testing.T) {
	router := newRecordingRouter()
	clock := newFakeClock()
	calls := 0
	f := newTestFilter(t, testConfig(), router, WithClock(func() time.Time {
		calls++
		if calls == 2 {
			panic("clock failure")
		}
		return clock.Now()
	}))

	in := entries(
		map[string]any{"message": "ok-1"},
		map[string]any{"message": "boom"},
		map[string]any{"message": "ok-2"},
	)
	out, err := f.FilterStream(context.Background(), "docker.app", in)
	require.NoError(t, err)

	require.Len(t, out, 2, "batch continues after a faulty record")
	assert.Equal(t, "ok-1", out[0].Record["message"])
	assert.Equal(t, "ok-2", out[1].Record["message"])

	errs := router.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "docker.app", errs[0].tag)
	assert.Equal(t, in[1].Time, errs[0].time)
	assert.Equal(t, in[1].Record, errs[0].record)

	var recErr *errors.RecordError
	require.ErrorAs(t, errs[0].cause, &recErr)
	assert.Equal(t, "clock failure", recErr.Value)
}

func TestFilterStream_ErrorRouteFailurePropagates(t *testing.T) {
	router := newRecordingRouter()
	router.errorErr = errSink
	calls := 0
	f := newTestFilter(t, testConfig(), router, WithClock(func() time.Time {
		calls++
		if calls == 2 {
			panic("clock failure")
		}
		return testutil.BaseTime
	}))

	out, err := f.FilterStream(context.Background(), "docker.app", entries(
		map[string]any{"message": "ok"},
		map[string]any{"message": "boom"},
		map[string]any{"message": "never"},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, errSink)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Record["message"])
}

func TestFilterStream_RejectsAfterShutdown(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())
	require.NoError(t, f.Shutdown(context.Background()))

	out, err := f.FilterStream(context.Background(), "docker.app",
		entries(testutil.DockerRecord("abc", "late", "true")))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, stderrors.Is(err, errors.ErrShuttingDown))
	assert.Empty(t, f.Pending())
}

func TestFilterStream_LongLineRoundTrip(t *testing.T) {
	f := newTestFilter(t, testConfig(), newRecordingRouter())

	line := testutil.LongLine(40000)
	out, err := f.FilterStream(context.Background(), "docker.app",
		entries(testutil.SplitLine("abc", line, 16384)...))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, line, out[0].Record["message"])
}

func TestFilterStream_ConcurrentStreams(t *testing.T) {
	router := newRecordingRouter()
	clock := newFakeClock()
	f := newTestFilter(t, testConfig(), router, WithClock(clock.Now))

	const workers = 8
	const lines = 50

	var wg sync.WaitGroup
	results := make([][]message.Entry, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c%d", w)
			for i := range lines {
				out, err := f.FilterStream(context.Background(), "docker.app",
					entries(testutil.SplitLine(id, fmt.Sprintf("%s-line-%03d", id, i), 4)...))
				assert.NoError(t, err)
				results[w] = append(results[w], out...)
			}
		}()
	}

	stop := make(chan struct{})
	sweeps := make(chan struct{})
	go func() {
		defer close(sweeps)
		for {
			select {
			case <-stop:
				return
			default:
				f.sweep(context.Background())
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-sweeps

	for w, out := range results {
		require.Len(t, out, lines)
		for i, e := range out {
			assert.Equal(t, fmt.Sprintf("c%d-line-%03d", w, i), e.Record["message"])
		}
	}
	assert.Empty(t, router.errors(), "no stream was idle long enough to time out")
	assert.Empty(t, f.Pending())
}
