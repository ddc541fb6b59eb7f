// Package counters implements the long-lived counter-collection worker
// of SPEC_FULL.md §4.3: on each request it partitions the target list
// into W contiguous chunks, runs each chunk on its own worker holding
// one performance session for the chunk's duration, and merges the
// partial results into a single store. The worker-pool shape is
// grounded on momentics-hioload-ws's internal/concurrency
// ThreadPool/Executor split between "accept work" and "run work".
package counters

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/transport"
)

// Request carries the counter-query targets for one collection round.
type Request struct {
	Targets []fabric.LidPort
}

// Reply carries the merged, best-effort counter store for one round.
// There is no per-request error: a failing target is simply absent
// from Store, per §4.3.
type Reply struct {
	Store fabric.CounterStore
}

// Config holds the parameters passed to every query and the worker
// pool size.
type Config struct {
	HCA       string
	TimeoutMS uint32
	Retries   uint32
	Threads   int
}

func (c Config) threadCount() int {
	if c.Threads < 1 {
		return 1
	}
	return c.Threads
}

// Service is the counter worker. Construct with New and run Run in its
// own goroutine; send Requests on In, receive Replies on Out, close
// via Stop.
type Service struct {
	cfg       Config
	transport transport.Transport
	log       *logrus.Entry

	in    chan Request
	out   chan Reply
	inbox *queue.Queue

	exit chan struct{}
	done chan struct{}
}

// New constructs a counter service. Call Run to start it.
func New(cfg Config, t transport.Transport, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		cfg:       cfg,
		transport: t,
		log:       log.WithField("component", "counters"),
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

// Stop sends CounterExit and waits for Run to drain and return.
func (s *Service) Stop() {
	close(s.exit)
	<-s.done
}

// Run is the service's event loop.
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
			s.inbox = queue.New()
			return
		default:
		}
		req := s.inbox.Remove().(Request)
		s.handle(ctx, req)
	}
}

func (s *Service) handle(ctx context.Context, req Request) {
	chunks := partition(req.Targets, s.cfg.threadCount())

	merged := make(fabric.CounterStore, len(req.Targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		wg.Add(1)
		go func(chunk []fabric.LidPort) {
			defer wg.Done()
			partial := s.runChunk(ctx, chunk)
			mu.Lock()
			for k, v := range partial {
				merged[k] = v
			}
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()

	s.log.WithField("collected", len(merged)).WithField("requested", len(req.Targets)).Info("counter collection complete")
	s.publish(Reply{Store: merged})
}

// runChunk opens one performance session for the lifetime of the
// chunk and queries each target in turn, skipping failures, per
// §4.3(3).
func (s *Service) runChunk(ctx context.Context, chunk []fabric.LidPort) fabric.CounterStore {
	session, err := s.transport.OpenPerfSession(ctx, s.cfg.HCA)
	if err != nil {
		s.log.WithError(err).Warn("failed to open performance session; chunk lost")
		return nil
	}
	defer session.Release()

	out := make(fabric.CounterStore, len(chunk))
	for _, target := range chunk {
		start := time.Now().UnixNano()
		perf, err := s.transport.QueryPortCounters(ctx, session, target.LID, target.Port, s.cfg.TimeoutMS, s.cfg.Retries)
		end := time.Now().UnixNano()
		if err != nil {
			s.log.WithError(err).WithField("target", target).Debug("query_port_counters failed")
			continue
		}
		out[target] = toRecord(perf, start, end)
	}
	return out
}

func toRecord(p transport.PerfRecord, start, end int64) fabric.CounterRecord {
	return fabric.CounterRecord{
		StartTimestamp: start,
		EndTimestamp:   end,
		Values: map[string]uint64{
			fabric.KeyXmtBytes:            p.PortXmitData,
			fabric.KeyRcvBytes:            p.PortRcvData,
			fabric.KeyXmtPkts:             p.PortXmitPkts,
			fabric.KeyRcvPkts:             p.PortRcvPkts,
			fabric.KeyXmitWaits:           p.PortXmitWait,
			fabric.KeyXmtDiscards:         p.PortXmitDiscards,
			fabric.KeyQP1Drops:            p.QP1Dropped,
			fabric.KeyVL15Dropped:         p.VL15Dropped,
			fabric.KeySymbolErrors:        p.SymbolErrorCounter,
			fabric.KeyLinkRecovers:        p.LinkErrorRecoveryCounter,
			fabric.KeyLinkDowned:          p.LinkDownedCounter,
			fabric.KeyRcvErrors:           p.PortRcvErrors,
			fabric.KeyPhysRcvErrors:       p.PortRcvRemotePhysicalErrors,
			fabric.KeySwitchRelErrors:     p.PortRcvSwitchRelayErrors,
			fabric.KeyExcessOverrunErrors: p.ExcessiveBufferOverrunErrors,
		},
	}
}

// partition splits targets into w contiguous chunks of size ⌈len/w⌉,
// per §4.3(2).
func partition(targets []fabric.LidPort, w int) [][]fabric.LidPort {
	if w < 1 {
		w = 1
	}
	if len(targets) == 0 {
		return nil
	}
	chunkSize := (len(targets) + w - 1) / w
	if chunkSize < 1 {
		chunkSize = 1
	}

	chunks := make([][]fabric.LidPort, 0, w)
	for i := 0; i < len(targets); i += chunkSize {
		end := i + chunkSize
		if end > len(targets) {
			end = len(targets)
		}
		chunks = append(chunks, targets[i:end])
	}
	return chunks
}

func (s *Service) publish(r Reply) {
	select {
	case s.out <- r:
	case <-s.exit:
	}
}
