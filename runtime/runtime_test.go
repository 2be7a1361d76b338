package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
	"github.com/kimberlitedb/kimberlite-sub005/vsr"
)

// noopTransport discards every message: these tests run a single-node
// cluster, so there are never any peers to actually reach.
type noopTransport struct{}

func (noopTransport) Send(ids.ReplicaId, interface{}) error { return nil }
func (noopTransport) Broadcast(interface{}) error           { return nil }

func newSingleNodeRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg, err := vsr.NewConfig([]ids.ReplicaId{0})
	require.NoError(t, err)
	replica := vsr.NewReplica(0, cfg, logging.Nop())

	rt := New(Config{
		Replica:   replica,
		DataDir:   t.TempDir(),
		SyncMode:  ledger.SyncFsync,
		Transport: noopTransport{},
		Log:       logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Run(ctx)
	return rt
}

func testTenantStream(t *testing.T) (ids.TenantId, ids.StreamId) {
	t.Helper()
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	stream, err := ids.NewStreamId(tenant, 1)
	require.NoError(t, err)
	return tenant, stream
}

func TestSubmitAndWaitCreateStreamThenAppend(t *testing.T) {
	rt := newSingleNodeRuntime(t)
	tenant, stream := testTenantStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := rt.SubmitAndWait(ctx, kernel.Command{
		Kind:   kernel.CommandCreateStream,
		Tenant: tenant,
		Stream: stream,
	})
	require.NoError(t, err)

	effects, err := rt.SubmitAndWait(ctx, kernel.Command{
		Kind:     kernel.CommandAppend,
		Tenant:   tenant,
		Stream:   stream,
		Payloads: [][]byte{[]byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, kernel.EffectAppend, effects[0].Kind)
	assert.Equal(t, ids.Offset(0), effects[0].Offset)
}

func TestSubscribeReceivesSubsequentAppends(t *testing.T) {
	rt := newSingleNodeRuntime(t)
	tenant, stream := testTenantStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := rt.SubmitAndWait(ctx, kernel.Command{Kind: kernel.CommandCreateStream, Tenant: tenant, Stream: stream})
	require.NoError(t, err)

	ch, cancelSub := rt.Subscribe(stream)
	defer cancelSub()

	_, err = rt.SubmitAndWait(ctx, kernel.Command{
		Kind:     kernel.CommandAppend,
		Tenant:   tenant,
		Stream:   stream,
		Payloads: [][]byte{[]byte("tailed")},
	})
	require.NoError(t, err)

	select {
	case entry := <-ch:
		assert.Equal(t, "tailed", string(entry.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a subscriber notification for the append")
	}
}

func TestPublishCheckpointRoundTrip(t *testing.T) {
	cfg, err := vsr.NewConfig([]ids.ReplicaId{0})
	require.NoError(t, err)
	replica := vsr.NewReplica(0, cfg, logging.Nop())

	store, err := ledger.NewLocalFileStore(t.TempDir())
	require.NoError(t, err)
	signer, err := kcrypto.NewCheckpointSigner("test-key")
	require.NoError(t, err)

	rt := New(Config{
		Replica:     replica,
		DataDir:     t.TempDir(),
		SyncMode:    ledger.SyncFsync,
		Transport:   noopTransport{},
		Log:         logging.Nop(),
		Checkpoints: ledger.NewCheckpointPublisher(store, signer),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	tenant, stream := testTenantStream(t)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	_, err = rt.SubmitAndWait(waitCtx, kernel.Command{Kind: kernel.CommandCreateStream, Tenant: tenant, Stream: stream})
	require.NoError(t, err)
	_, err = rt.SubmitAndWait(waitCtx, kernel.Command{
		Kind: kernel.CommandAppend, Tenant: tenant, Stream: stream, Payloads: [][]byte{[]byte("a")},
	})
	require.NoError(t, err)

	path, err := rt.publishCheckpoint(waitCtx, stream)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}
