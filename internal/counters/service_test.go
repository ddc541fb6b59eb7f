package counters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/transport/testtransport"
)

func TestServiceCollectsAllTargets(t *testing.T) {
	tr := testtransport.New(testtransport.DefaultConfig())
	svc := New(Config{HCA: "mlx5_0", TimeoutMS: 250, Retries: 2, Threads: 4}, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)
	defer svc.Stop()

	targets := make([]fabric.LidPort, 0, 8)
	for i := 0; i < 8; i++ {
		targets = append(targets, fabric.LidPort{LID: uint16(17 + i), Port: fabric.AggregatePort})
	}
	svc.In() <- Request{Targets: targets}

	select {
	case reply := <-svc.Out():
		require.Len(t, reply.Store, 8)
		for _, target := range targets {
			rec, ok := reply.Store[target]
			require.True(t, ok, "missing target %+v", target)
			require.Greater(t, rec.Get(fabric.KeyRcvBytes), uint64(0))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for counter reply")
	}
}

func TestPartitionProducesCeilChunkSize(t *testing.T) {
	targets := make([]fabric.LidPort, 10)
	chunks := partition(targets, 3)

	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 4)
	require.Len(t, chunks[1], 4)
	require.Len(t, chunks[2], 2)
}

func TestPartitionClampsThreadsToAtLeastOne(t *testing.T) {
	targets := make([]fabric.LidPort, 3)
	chunks := partition(targets, 0)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 3)
}

func TestPartitionEmptyTargetsProducesNoChunks(t *testing.T) {
	require.Empty(t, partition(nil, 4))
}
