// Package transport defines the capability set the discovery and
// counter services are parameterised over (§9 "Polymorphism over
// transport"): opening management sessions, walking the fabric, and
// querying one port's counters. The package itself carries no backend;
// see testtransport and ibmad for the two variants this module wires.
package transport

import (
	"context"
	"fmt"
)

// Error wraps a failure from the management transport with the
// operation and device that failed, per §7's "Transport open error"
// and "Transport query error" kinds.
type Error struct {
	Op     string
	Device string
	Err    error
}

func (e *Error) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LinkState mirrors the subset of IB port link states the core cares
// about when deciding whether to keep a discovered port.
type LinkState int

const (
	LinkStateUnknown LinkState = iota
	LinkStateDown
	LinkStateInit
	LinkStateArmed
	LinkStateActive
)

// RawPort is one port as returned directly by discovery, before the
// discovery service resolves remote back-references into a flat
// description string.
type RawPort struct {
	Number    uint16
	LID       uint16
	LinkState LinkState
	PhysState string

	// RemoteNode/RemotePort identify the peer side of the link, if
	// known. RemoteKnown is false when the link is down or the peer
	// could not be resolved; this is the Go stand-in for the "optional
	// weak back-reference" §4.1 describes — ownership lives in
	// RawTopology.Nodes, this is just an index into it.
	RemoteKnown bool
	RemoteNode  int // index into RawTopology.Nodes
	RemotePort  int // index into the remote node's Ports
}

// RawNode is one node as returned directly by discovery.
type RawNode struct {
	Type        NodeKind
	GUID        uint64
	LID         uint16
	Description string
	Ports       []RawPort
}

// NodeKind is the discovery-level node type, named distinctly from
// fabric.NodeType so the transport package has no dependency on the
// core data model (transport is the leaf of the dependency graph; the
// discovery service is the one place that converts between the two).
type NodeKind int

const (
	NodeKindUnknown NodeKind = iota
	NodeKindSwitch
	NodeKindCA
	NodeKindRouter
)

// RawTopology is the sequential-traversal result handed back by
// discover_fabric, still shaped as a cyclic graph (ports reference
// peers by index) per §9's "Cyclic graphs" note.
type RawTopology struct {
	Nodes []RawNode
}

// PerfRecord is the typed accessor set query_port_counters returns for
// one (LID, port). Fields not populated by a given backend are left at
// zero, which the core's missing-key-is-zero rule treats identically
// to an absent counter.
type PerfRecord struct {
	PortXmitData                 uint64
	PortRcvData                  uint64
	PortXmitPkts                 uint64
	PortRcvPkts                  uint64
	PortXmitWait                 uint64
	SymbolErrorCounter           uint64
	LinkErrorRecoveryCounter     uint64
	LinkDownedCounter            uint64
	PortRcvErrors                uint64
	PortRcvRemotePhysicalErrors  uint64
	PortRcvSwitchRelayErrors     uint64
	PortXmitDiscards             uint64
	ExcessiveBufferOverrunErrors uint64
	VL15Dropped                  uint64
	QP1Dropped                   uint64
}

// Session is a scoped handle on an open management port. Release
// closes it; callers must call Release exactly once, normally via
// defer immediately after a successful Open*Session call.
type Session interface {
	Release()
}

// Transport is the capability set §9 calls out: a discovery service
// needs OpenSMPSession + DiscoverFabric, a counter service needs
// OpenPerfSession + QueryPortCounters. Both services are constructed
// with one Transport value; real and test backends both implement this
// single interface so callers never branch on backend identity.
type Transport interface {
	OpenSMPSession(ctx context.Context, hca string) (Session, error)
	OpenPerfSession(ctx context.Context, hca string) (Session, error)
	DiscoverFabric(ctx context.Context, session Session, timeoutMS, retries uint32) (RawTopology, error)
	QueryPortCounters(ctx context.Context, session Session, lid uint16, port uint16, timeoutMS, retries uint32) (PerfRecord, error)
}
