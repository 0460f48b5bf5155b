package partialconcat

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/message"
	"github.com/c360/journaldconcat/natsclient"
	"github.com/c360/journaldconcat/testutil"
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
}

func collect(t *testing.T, client *natsclient.Client, subject string) <-chan *message.EventStream {
	t.Helper()
	ch := make(chan *message.EventStream, 16)
	require.NoError(t, client.Subscribe(context.Background(), subject, func(_ context.Context, data []byte) {
		es, err := message.DecodeEventStream(data)
		if err == nil {
			ch <- es
		}
	}))
	return ch
}

func receive(t *testing.T, ch <-chan *message.EventStream) *message.EventStream {
	t.Helper()
	select {
	case es := <-ch:
		return es
	case <-time.After(10 * time.Second):
		t.Fatal("no event stream received")
		return nil
	}
}

func TestIntegration_JetStreamInputToCoreOutput(t *testing.T) {
	requireIntegration(t)
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	raw, err := json.Marshal(map[string]any{
		"flush_interval":    1,
		"sweep_interval_ms": 50,
		"timeout_label":     "slow",
		"labels":            map[string]string{"slow": "it.concat.timeout"},
		"ports": map[string]any{
			"inputs": []map[string]any{{
				"name": "input", "type": "jetstream", "subject": "it.docker.>", "stream_name": "IT_LOGS",
			}},
			"outputs": []map[string]any{
				{"name": "output", "subject": "it.concat"},
				{"name": "error", "subject": "it.concat.error"},
			},
		},
	})
	require.NoError(t, err)

	comp, err := NewProcessor(raw, component.Dependencies{NATSClient: tc.Client})
	require.NoError(t, err)
	proc := comp.(*Processor)

	out := collect(t, tc.Client, "it.concat")
	timeouts := collect(t, tc.Client, "it.concat.timeout")

	require.NoError(t, proc.Start(ctx))
	t.Cleanup(func() { _ = proc.Stop(5 * time.Second) })

	line := testutil.LongLine(50000)
	require.NoError(t, tc.Client.PublishToStream(ctx, "it.docker.app",
		testutil.StreamJSON("docker.app", testutil.SplitLine("abc", line, 16384)...)))

	es := receive(t, out)
	require.Len(t, es.Entries, 1)
	assert.Equal(t, line, es.Entries[0].Record["message"])

	require.NoError(t, tc.Client.PublishToStream(ctx, "it.docker.app",
		testutil.StreamJSON("docker.app", testutil.DockerRecord("def", "never finished", "true"))))

	es = receive(t, timeouts)
	require.Len(t, es.Entries, 1)
	assert.Equal(t, "never finished", es.Entries[0].Record["message"])
	assert.NotContains(t, es.Entries[0].Record, DefaultMatchKey)
}

func TestIntegration_StopDrainsPending(t *testing.T) {
	requireIntegration(t)
	tc := natsclient.NewTestClient(t)
	ctx := context.Background()

	comp, err := NewProcessor(json.RawMessage(`{"ports": {"inputs": [{"name": "input", "subject": "it2.docker.>"}]}}`),
		component.Dependencies{NATSClient: tc.Client})
	require.NoError(t, err)
	proc := comp.(*Processor)

	out := collect(t, tc.Client, "logs.concat")
	require.NoError(t, proc.Start(ctx))

	require.NoError(t, tc.Client.Publish(ctx, "it2.docker.app",
		testutil.StreamJSON("docker.app",
			testutil.DockerRecord("abc", "left ", "true"),
			testutil.DockerRecord("abc", "over", "true"))))

	require.Eventually(t, func() bool {
		return len(proc.Filter().Pending()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, proc.Stop(5*time.Second))

	es := receive(t, out)
	require.Len(t, es.Entries, 1)
	assert.Equal(t, "left over", es.Entries[0].Record["message"])
}
