// Command ibtop is the terminal fabric monitor of SPEC_FULL.md: it
// wires configuration, transport selection, the discovery and counter
// services, the state coordinator, and the termbox view into one
// process. Entrypoint shape (parse, Execute, os.Exit(1) on failure) is
// grounded on linkerd-linkerd2's cli/main.go.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/newellz2/ibtop/internal/config"
	"github.com/newellz2/ibtop/internal/coordinator"
	"github.com/newellz2/ibtop/internal/counters"
	"github.com/newellz2/ibtop/internal/discovery"
	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/scopefile"
	"github.com/newellz2/ibtop/internal/transport"
	"github.com/newellz2/ibtop/internal/transport/ibmad"
	"github.com/newellz2/ibtop/internal/transport/testtransport"
	"github.com/newellz2/ibtop/internal/ui"
)

func main() {
	root, logBuf := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Sprint(ui.SeverityError, err.Error()))
		if logBuf.Len() > 0 {
			fmt.Fprintln(os.Stderr, logBuf.String())
		}
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *logBuffer) {
	v := viper.New()
	buf := newLogBuffer()

	cmd := &cobra.Command{
		Use:   "ibtop",
		Short: "interactive InfiniBand fabric monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromViper(v)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			return run(cfg, buf)
		},
	}
	config.BindFlags(cmd, v)
	return cmd, buf
}

// logBuffer is an unbounded in-memory log sink: everything logrus
// would otherwise write to stderr while termbox owns the screen lands
// here instead. main prints it to stderr only when the command returns
// an error, after the terminal is torn down; on a clean exit it is
// discarded.
type logBuffer struct{ buf []byte }

func newLogBuffer() *logBuffer { return &logBuffer{} }

func (b *logBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *logBuffer) Len() int       { return len(b.buf) }
func (b *logBuffer) String() string { return string(b.buf) }

func run(cfg config.Config, buf *logBuffer) error {
	log := logrus.New()
	log.SetOutput(buf)
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	if cfg.Tracing {
		log.SetReportCaller(true)
	}
	root := logrus.NewEntry(log)

	tr, err := selectTransport(cfg)
	if err != nil {
		return err
	}

	// ibmad's DiscoverFabric only ever reports the local HCA itself (see
	// internal/transport/ibmad's package doc): without this the node
	// table would always come back empty for the real backend, since
	// flatten() drops CA nodes unless IncludeHCAs is set.
	includeHCAs := cfg.IncludeHCAs
	if cfg.ServiceType == config.ServiceTypeIBMad {
		includeHCAs = true
	}

	discoverySvc := discovery.New(discovery.Config{
		HCA:         cfg.HCA,
		TimeoutMS:   cfg.TimeoutMS,
		Retries:     cfg.Retries,
		IncludeHCAs: includeHCAs,
	}, tr, root)

	counterSvc := counters.New(counters.Config{
		HCA:       cfg.HCA,
		TimeoutMS: cfg.TimeoutMS,
		Retries:   cfg.Retries,
		Threads:   cfg.Threads,
	}, tr, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go discoverySvc.Run(ctx)
	go counterSvc.Run(ctx)
	defer discoverySvc.Stop()
	defer counterSvc.Stop()

	tui := ui.New(root)
	if err := tui.Init(); err != nil {
		return fmt.Errorf("terminal initialisation failed: %w", err)
	}

	state := coordinator.NewAppState(cfg.UpdateInterval)
	coord := coordinator.New(state, discoverySvc, counterSvc, tui, root)

	if cfg.ScopeFile != "" {
		nodes, err := loadScopeFile(cfg.ScopeFile, root)
		if err != nil {
			tui.Close()
			return err
		}
		coord.SetStaticNodes(nodes)
	}

	return runSession(ctx, tui, coord)
}

// runSession restores the terminal on both the normal path and a
// panic, per §7's "terminal is restored before the process exits".
func runSession(ctx context.Context, tui *ui.Model, coord *coordinator.Coordinator) (err error) {
	defer func() {
		tui.Close()
		if r := recover(); r != nil {
			err = fmt.Errorf("ibtop: unrecoverable panic: %v", r)
		}
	}()

	go tui.RunInput(ctx, coord)
	coord.Run(ctx)
	return nil
}

func selectTransport(cfg config.Config) (transport.Transport, error) {
	switch cfg.ServiceType {
	case config.ServiceTypeTest:
		return testtransport.New(testtransport.DefaultConfig()), nil
	case config.ServiceTypeIBMad:
		return ibmad.New(), nil
	default:
		return nil, fmt.Errorf("unknown service type %q", cfg.ServiceType)
	}
}

func loadScopeFile(path string, log *logrus.Entry) ([]fabric.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scope file: %w", err)
	}
	defer f.Close()

	nodes, err := scopefile.Load(f, func(msg string) { log.Warn(msg) })
	if err != nil {
		return nil, fmt.Errorf("load scope file: %w", err)
	}
	return nodes, nil
}

var _ io.Writer = (*logBuffer)(nil)
