// Package testtransport is the deterministic backend §4.1 calls the
// "test transport": it fabricates a topology of switches and produces
// counter values as a monotonically increasing function of elapsed
// wall time and (LID, port), so delta/baseline semantics can be
// exercised without hardware. It is the fixture for every S1-S6
// scenario in SPEC_FULL.md §8.
package testtransport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newellz2/ibtop/internal/transport"
)

// Config controls the synthetic fabric's shape.
type Config struct {
	Switches       int
	PortsPerSwitch int
	BaseLID        uint16
	// Now, when set, is used instead of time.Now for counter synthesis
	// so tests get fully reproducible values.
	Now func() time.Time
}

// DefaultConfig matches SPEC_FULL.md §8 scenario S1: 8 switches, LIDs
// 17..=24.
func DefaultConfig() Config {
	return Config{Switches: 8, PortsPerSwitch: 36, BaseLID: 17}
}

type session struct{}

func (session) Release() {}

// Transport is a transport.Transport backed entirely by an in-memory,
// deterministic model. Safe for concurrent use: OpenSMPSession,
// OpenPerfSession and QueryPortCounters take no lock, DiscoverFabric
// rebuilds its topology from Config on every call (no mutable shared
// state to race on), matching §5's "eliminates data races by
// construction" for a transport that has no real I/O to serialize.
type Transport struct {
	cfg Config
	mu  sync.Mutex
	// epoch anchors the deterministic counter synthesis; frozen at
	// construction so repeated calls to Now-less configs still produce
	// a monotonically increasing, reproducible series across a test.
	epoch time.Time
}

// New constructs a deterministic test transport.
func New(cfg Config) *Transport {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	return &Transport{cfg: cfg, epoch: now()}
}

func (t *Transport) now() time.Time {
	if t.cfg.Now != nil {
		return t.cfg.Now()
	}
	return time.Now()
}

func (t *Transport) OpenSMPSession(ctx context.Context, hca string) (transport.Session, error) {
	return session{}, nil
}

func (t *Transport) OpenPerfSession(ctx context.Context, hca string) (transport.Session, error) {
	return session{}, nil
}

func (t *Transport) DiscoverFabric(ctx context.Context, s transport.Session, timeoutMS, retries uint32) (transport.RawTopology, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	topo := transport.RawTopology{Nodes: make([]transport.RawNode, 0, t.cfg.Switches)}
	for i := 0; i < t.cfg.Switches; i++ {
		lid := t.cfg.BaseLID + uint16(i)
		node := transport.RawNode{
			Type:        transport.NodeKindSwitch,
			GUID:        0xf000000000000000 | uint64(lid),
			LID:         lid,
			Description: fmt.Sprintf("switch-%d", i+1),
		}
		for p := 1; p <= t.cfg.PortsPerSwitch; p++ {
			node.Ports = append(node.Ports, transport.RawPort{
				Number:    uint16(p),
				LID:       lid,
				LinkState: transport.LinkStateActive,
				PhysState: "LinkUp",
			})
		}
		topo.Nodes = append(topo.Nodes, node)
	}

	// Wire a simple ring: switch i port 1 <-> switch i+1 port 2, so
	// remote-node-description resolution has something non-trivial to
	// exercise (§4.2 back-reference walk).
	n := len(topo.Nodes)
	for i := 0; i < n; i++ {
		if n < 2 {
			break
		}
		next := (i + 1) % n
		topo.Nodes[i].Ports[0].RemoteKnown = true
		topo.Nodes[i].Ports[0].RemoteNode = next
		topo.Nodes[i].Ports[0].RemotePort = 1
		topo.Nodes[next].Ports[1].RemoteKnown = true
		topo.Nodes[next].Ports[1].RemoteNode = i
		topo.Nodes[next].Ports[1].RemotePort = 0
	}

	return topo, nil
}

// QueryPortCounters synthesises counters as elapsed-milliseconds-since-
// epoch (plus one) scaled per (lid, port), so repeated calls increase
// monotonically, distinct targets never collide, and a higher LID grows
// faster between two samples.
func (t *Transport) QueryPortCounters(ctx context.Context, s transport.Session, lid uint16, port uint16, timeoutMS, retries uint32) (transport.PerfRecord, error) {
	elapsed := t.now().Sub(t.epoch).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	scale := (uint64(elapsed*1000) + 1) * (uint64(lid)*1000 + uint64(port))

	return transport.PerfRecord{
		PortXmitData: scale * 7,
		PortRcvData:  scale * 11,
		PortXmitPkts: scale,
		PortRcvPkts:  scale,
		PortXmitWait: scale / 3,
	}, nil
}

var _ transport.Transport = (*Transport)(nil)
