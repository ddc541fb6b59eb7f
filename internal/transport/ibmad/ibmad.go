// Package ibmad is the real transport backend selected by
// --service-type=ibmad. It is grounded on github.com/Mellanox/rdmamap
// for device and counter enumeration (the same library
// yuuki-rdma_exporter uses for exactly this purpose) plus direct sysfs
// reads for the port attributes rdmamap does not expose (LID, link
// state) in the style of that project's internal/rdma provider.
//
// True multi-hop subnet-management discovery requires direct-routed
// SMP datagrams, which live behind libibumad/libibmad (a C library
// normally reached via cgo); DESIGN.md records why that binding is not
// fabricated here. DiscoverFabric instead reports the single node that
// owns the named HCA, with its directly-visible ports — "reachable
// from a local host adapter" in the sysfs sense. The test transport
// (see ../testtransport) is what exercises the full multi-switch
// back-reference-resolving algorithm the core implements.
package ibmad

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Mellanox/rdmamap"

	"github.com/newellz2/ibtop/internal/transport"
)

const (
	sysfsRoot = "/sys"
	classPath = "class/infiniband"
	portsDir  = "ports"
	lidFile   = "lid"
	stateFile = "state"
	physFile  = "phys_state"

	// representativePort is the port the transport queries when a
	// target asks for the AggregatePort sentinel, since rdmamap's
	// all-ports call already aggregates across the device — see §4.3's
	// "MUST query a designated representative port and document this
	// substitution" and DESIGN.md open-question resolution 1.
	representativePort = 0
)

type session struct {
	device string
}

func (session) Release() {}

// Transport implements transport.Transport against the host's sysfs
// InfiniBand/RDMA class tree.
type Transport struct {
	sysfsRoot string
}

// New constructs an ibmad-backed transport rooted at the real sysfs
// tree. Tests that need a fake tree can construct Transport{sysfsRoot:
// dir} directly since the field is unexported within the package.
func New() *Transport {
	return &Transport{sysfsRoot: sysfsRoot}
}

func (t *Transport) OpenSMPSession(ctx context.Context, hca string) (transport.Session, error) {
	if !deviceExists(hca) {
		return nil, &transport.Error{Op: "open_smp_session", Device: hca, Err: fmt.Errorf("device not found")}
	}
	return session{device: hca}, nil
}

func (t *Transport) OpenPerfSession(ctx context.Context, hca string) (transport.Session, error) {
	if !deviceExists(hca) {
		return nil, &transport.Error{Op: "open_perf_session", Device: hca, Err: fmt.Errorf("device not found")}
	}
	return session{device: hca}, nil
}

func deviceExists(name string) bool {
	for _, d := range rdmamap.GetRdmaDeviceList() {
		if d == name {
			return true
		}
	}
	return false
}

func (t *Transport) DiscoverFabric(ctx context.Context, s transport.Session, timeoutMS, retries uint32) (transport.RawTopology, error) {
	sess, ok := s.(session)
	if !ok {
		return transport.RawTopology{}, &transport.Error{Op: "discover_fabric", Err: fmt.Errorf("invalid session")}
	}

	lid, err := t.readLID(sess.device)
	if err != nil {
		return transport.RawTopology{}, &transport.Error{Op: "discover_fabric", Device: sess.device, Err: err}
	}

	stats, err := rdmamap.GetRdmaSysfsAllPortsStats(sess.device)
	if err != nil {
		return transport.RawTopology{}, &transport.Error{Op: "discover_fabric", Device: sess.device, Err: err}
	}

	node := transport.RawNode{
		Type:        transport.NodeKindCA,
		GUID:        deviceGUID(sess.device),
		LID:         lid,
		Description: sess.device,
	}
	for _, ps := range stats.PortStats {
		state, phys := t.readPortState(sess.device, ps.Port)
		node.Ports = append(node.Ports, transport.RawPort{
			Number:    uint16(ps.Port),
			LID:       lid,
			LinkState: state,
			PhysState: phys,
		})
	}

	return transport.RawTopology{Nodes: []transport.RawNode{node}}, nil
}

func (t *Transport) QueryPortCounters(ctx context.Context, s transport.Session, lid uint16, port uint16, timeoutMS, retries uint32) (transport.PerfRecord, error) {
	sess, ok := s.(session)
	if !ok {
		return transport.PerfRecord{}, &transport.Error{Op: "query_port_counters", Err: fmt.Errorf("invalid session")}
	}

	queryPort := int(port)
	if port >= 255 {
		queryPort = representativePort
	}

	stats, err := rdmamap.GetRdmaSysfsAllPortsStats(sess.device)
	if err != nil {
		return transport.PerfRecord{}, &transport.Error{Op: "query_port_counters", Device: sess.device, Err: err}
	}

	for _, ps := range stats.PortStats {
		if ps.Port != queryPort {
			continue
		}
		rec := transport.PerfRecord{}
		applyStat := func(entries []rdmamap.RdmaStatEntry) {
			for _, e := range entries {
				switch e.Name {
				case "port_xmit_data":
					rec.PortXmitData = e.Value
				case "port_rcv_data":
					rec.PortRcvData = e.Value
				case "port_xmit_packets":
					rec.PortXmitPkts = e.Value
				case "port_rcv_packets":
					rec.PortRcvPkts = e.Value
				case "port_xmit_wait":
					rec.PortXmitWait = e.Value
				case "symbol_error":
					rec.SymbolErrorCounter = e.Value
				case "link_error_recovery":
					rec.LinkErrorRecoveryCounter = e.Value
				case "link_downed":
					rec.LinkDownedCounter = e.Value
				case "port_rcv_errors":
					rec.PortRcvErrors = e.Value
				case "port_rcv_remote_physical_errors":
					rec.PortRcvRemotePhysicalErrors = e.Value
				case "port_rcv_switch_relay_errors":
					rec.PortRcvSwitchRelayErrors = e.Value
				case "port_xmit_discards":
					rec.PortXmitDiscards = e.Value
				case "excessive_buffer_overrun_errors":
					rec.ExcessiveBufferOverrunErrors = e.Value
				case "VL15_dropped":
					rec.VL15Dropped = e.Value
				case "qp1_dropped":
					rec.QP1Dropped = e.Value
				}
			}
		}
		applyStat(ps.Stats)
		applyStat(ps.HwStats)
		return rec, nil
	}

	return transport.PerfRecord{}, &transport.Error{Op: "query_port_counters", Device: sess.device, Err: fmt.Errorf("port %d not found", queryPort)}
}

func (t *Transport) readLID(device string) (uint16, error) {
	root := t.sysfsRoot
	if root == "" {
		root = sysfsRoot
	}
	dir := filepath.Join(root, classPath, device, portsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name(), lidFile))
		if err != nil {
			continue
		}
		value := strings.TrimSpace(string(raw))
		value = strings.TrimPrefix(value, "0x")
		parsed, err := strconv.ParseUint(value, 16, 16)
		if err != nil {
			continue
		}
		return uint16(parsed), nil
	}
	return 0, fmt.Errorf("no port exposes a lid")
}

func (t *Transport) readPortState(device string, port int) (transport.LinkState, string) {
	root := t.sysfsRoot
	if root == "" {
		root = sysfsRoot
	}
	portDir := filepath.Join(root, classPath, device, portsDir, strconv.Itoa(port))

	raw, err := os.ReadFile(filepath.Join(portDir, stateFile))
	state := transport.LinkStateUnknown
	if err == nil {
		switch {
		case strings.Contains(string(raw), "ACTIVE"):
			state = transport.LinkStateActive
		case strings.Contains(string(raw), "INIT"):
			state = transport.LinkStateInit
		case strings.Contains(string(raw), "ARMED"):
			state = transport.LinkStateArmed
		case strings.Contains(string(raw), "DOWN"):
			state = transport.LinkStateDown
		}
	}

	phys := ""
	if raw, err := os.ReadFile(filepath.Join(portDir, physFile)); err == nil {
		phys = strings.TrimSpace(string(raw))
	}
	return state, phys
}

// deviceGUID derives a stable pseudo-GUID from the device name (the
// node_guid sysfs attribute is not read), so distinct devices still
// satisfy the "guid is unique within the node set" invariant.
func deviceGUID(device string) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for _, b := range []byte(device) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

var _ transport.Transport = (*Transport)(nil)
