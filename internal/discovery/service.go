// Package discovery implements the long-lived discovery worker of
// SPEC_FULL.md §4.2: it owns a request inbox and a reply outbox, opens
// an SMP session per request, drives the transport's DiscoverFabric,
// flattens the cyclic raw topology into fabric.Node/Port with
// pre-resolved remote-port descriptions, and publishes exactly one
// reply per request.
package discovery

import (
	"context"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/transport"
)

// Request asks the service to (re)discover the fabric.
type Request struct{}

// Reply carries either a node list or an error, never both, matching
// §4.2's "exactly one DiscoveryReply or DiscoveryError" contract.
type Reply struct {
	Nodes []fabric.Node
	Err   error
}

// Config holds the parameters passed to every DiscoverFabric call.
type Config struct {
	HCA         string
	TimeoutMS   uint32
	Retries     uint32
	IncludeHCAs bool
}

// Service is the discovery worker. Construct with New and run Run in
// its own goroutine; send Requests on In, receive Replies on Out,
// close via Stop.
type Service struct {
	cfg       Config
	transport transport.Transport
	log       *logrus.Entry

	in  chan Request
	out chan Reply

	// inbox is the FIFO the spec calls a "request inbox": Run pulls
	// work off Run's select loop into this queue so requests sent
	// faster than they can be processed still arrive, and are
	// processed, strictly in order, per §4.2 "no request is dropped".
	inbox *queue.Queue

	exit chan struct{}
	done chan struct{}
}

// New constructs a discovery service. Call Run to start it.
func New(cfg Config, t transport.Transport, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		cfg:       cfg,
		transport: t,
		log:       log.WithField("component", "discovery"),
		in:        make(chan Request, 8),
		out:       make(chan Reply, 8),
		inbox:     queue.New(),
		exit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// In is the request mailbox.
func (s *Service) In() chan<- Request { return s.in }

// Out is the reply mailbox.
func (s *Service) Out() <-chan Reply { return s.out }

// Stop sends DiscoveryExit and waits for Run to drain and return.
func (s *Service) Stop() {
	close(s.exit)
	<-s.done
}

// Run is the service's event loop. It must be started in its own
// goroutine; it returns once Stop has been called and any in-flight
// request has completed, per §5's "in-progress request must complete,
// subsequent requests are dropped".
func (s *Service) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case req := <-s.in:
			s.inbox.Add(req)
			s.drain(ctx)
		case <-s.exit:
			return
		}
	}
}

func (s *Service) drain(ctx context.Context) {
	for s.inbox.Length() > 0 {
		select {
		case <-s.exit:
			// Finish the request already dequeued, if any, but do not
			// start new ones: drop the remainder per §5.
			s.inbox = queue.New()
			return
		default:
		}
		s.inbox.Remove()
		s.handle(ctx)
	}
}

func (s *Service) handle(ctx context.Context) {
	session, err := s.transport.OpenSMPSession(ctx, s.cfg.HCA)
	if err != nil {
		s.log.WithError(err).Warn("failed to open SMP session")
		s.publish(Reply{Err: err})
		return
	}
	defer session.Release()

	topo, err := s.transport.DiscoverFabric(ctx, session, s.cfg.TimeoutMS, s.cfg.Retries)
	if err != nil {
		s.log.WithError(err).Warn("discover_fabric failed")
		s.publish(Reply{Err: err})
		return
	}

	nodes := flatten(topo, s.cfg.IncludeHCAs)
	s.log.WithField("nodes", len(nodes)).Info("discovery complete")
	s.publish(Reply{Nodes: nodes})
}

func (s *Service) publish(r Reply) {
	select {
	case s.out <- r:
	case <-s.exit:
	}
}

// flatten walks the cyclic raw topology once, resolving each port's
// weak back-reference into a pre-computed remote-node-description
// string, and returns the flat acyclic Node/Port model the rest of the
// core operates on (§9 "Cyclic graphs").
func flatten(topo transport.RawTopology, includeHCAs bool) []fabric.Node {
	nodes := make([]fabric.Node, 0, len(topo.Nodes))
	for _, raw := range topo.Nodes {
		if raw.Type == transport.NodeKindCA && !includeHCAs {
			continue
		}
		if raw.Type != transport.NodeKindSwitch && raw.Type != transport.NodeKindCA {
			continue
		}

		node := fabric.Node{
			GUID:        raw.GUID,
			Description: raw.Description,
			LID:         raw.LID,
			Type:        convertKind(raw.Type),
		}

		if raw.Type == transport.NodeKindCA {
			// HCA ports are not exposed, per §4.2.
			nodes = append(nodes, node)
			continue
		}

		for _, p := range raw.Ports {
			if p.Number == 0 {
				continue // management port
			}
			if p.LinkState != transport.LinkStateActive && p.LinkState != transport.LinkStateInit {
				continue
			}
			node.Ports = append(node.Ports, fabric.Port{
				Number:                p.Number,
				RemoteNodeDescription: resolveRemoteDescription(topo, p),
			})
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// resolveRemoteDescription upgrades the weak back-reference once. Any
// break in the chain (out-of-range index, unresolved link) degrades to
// empty string rather than failing the whole response, per §4.2.
func resolveRemoteDescription(topo transport.RawTopology, p transport.RawPort) string {
	if !p.RemoteKnown {
		return ""
	}
	if p.RemoteNode < 0 || p.RemoteNode >= len(topo.Nodes) {
		return ""
	}
	return topo.Nodes[p.RemoteNode].Description
}

func convertKind(k transport.NodeKind) fabric.NodeType {
	switch k {
	case transport.NodeKindSwitch:
		return fabric.NodeTypeSwitch
	case transport.NodeKindCA:
		return fabric.NodeTypeCA
	case transport.NodeKindRouter:
		return fabric.NodeTypeRouter
	default:
		return fabric.NodeTypeUnknown
	}
}
