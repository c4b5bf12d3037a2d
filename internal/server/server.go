// Package server implements the Server Orchestrator (C10): socket setup,
// the TCP accept loop, per-connection goroutine spawn, and graceful
// shutdown, wiring together the Timer Manager (C5), Connection Context
// (C6), State Machine (C7), TCP Session Runtime (C8), and UDP Discovery
// (C9) for every accepted connection.
//
// Grounded directly on the teacher's Server type and Start/Stop/acceptLoop
// (tonylturner-cipdip internal/server/core/listener.go): a cancellable
// context joins the three long-running goroutines (TCP accept loop, UDP
// discovery listener, UDP announcer) via golang.org/x/sync/errgroup, the
// accept loop polls with a short deadline so it can observe shutdown
// without a second unblocking mechanism, and a mutex-guarded map tracks
// live connections for Stop to tear down. Per-connection goroutines are
// still joined with a plain sync.WaitGroup since their count is unbounded
// and dynamic, unlike the three fixed long-running ones.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tturner/doip/internal/appmodel"
	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/discovery"
	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/fsm"
	"github.com/tturner/doip/internal/tcpsession"
	"github.com/tturner/doip/internal/timer"
	"github.com/tturner/doip/internal/tui"
)

// Config bundles everything the orchestrator needs to bind sockets and
// configure each spawned connection's state machine.
type Config struct {
	Identity       discovery.Identity
	ListenIP       string
	TCPPort        int
	UDPPort        int
	Announce       discovery.Config
	Timers         fsm.Config
	MaxMessageSize uint32

	// EventSocketPath, if set, makes Start bind a Unix domain socket that
	// the monitor TUI (D3) can attach to for a live feed of connection
	// lifecycle and state-transition events. Empty disables monitoring.
	EventSocketPath string
}

// DefaultConfig returns ISO 13400-2 default ports and timers for the given
// identity.
func DefaultConfig(identity discovery.Identity) Config {
	return Config{
		Identity: identity,
		ListenIP: "0.0.0.0",
		TCPPort:  discovery.DefaultPort,
		UDPPort:  discovery.DefaultPort,
		Announce: discovery.DefaultConfig(),
		Timers:   fsm.DefaultConfig(),
	}
}

// ModelFactory produces a fresh Application Model for each accepted
// connection (spec.md §4.7: "a user-supplied factory producing the
// Application Model").
type ModelFactory func() appmodel.Model

// Server owns the listening sockets and every live connection.
type Server struct {
	cfg          Config
	modelFactory ModelFactory
	logger       *log.Logger

	tcpListener *net.TCPListener
	discoverer  *discovery.Listener

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	wg     sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*connctx.Connection]struct{}

	events *tui.Publisher
}

// New builds a Server. modelFactory is called once per accepted
// connection.
func New(cfg Config, modelFactory ModelFactory, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:          cfg,
		modelFactory: modelFactory,
		logger:       logger,
		conns:        make(map[*connctx.Connection]struct{}),
	}
}

// Start binds the TCP and UDP sockets, begins the discovery listener, the
// vehicle-announcement burst, and the TCP accept loop.
func (s *Server) Start() error {
	var parentCtx context.Context
	parentCtx, s.cancel = context.WithCancel(context.Background())
	var gctx context.Context
	s.group, gctx = errgroup.WithContext(parentCtx)
	s.ctx = gctx

	if s.cfg.EventSocketPath != "" {
		publisher, err := tui.NewPublisher(s.cfg.EventSocketPath, s.logger)
		if err != nil {
			return fmt.Errorf("listen monitor socket: %w", err)
		}
		s.events = publisher
		s.logger.Printf("server: monitor socket at %s", s.cfg.EventSocketPath)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", s.cfg.ListenIP, s.cfg.TCPPort))
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}
	s.tcpListener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}
	s.logger.Printf("server: TCP listening on %s:%d", s.cfg.ListenIP, s.cfg.TCPPort)

	s.discoverer, err = discovery.NewListener(s.cfg.UDPPort, s.cfg.Identity, s.logger)
	if err != nil {
		s.tcpListener.Close()
		return fmt.Errorf("listen UDP discovery: %w", err)
	}
	s.logger.Printf("server: UDP discovery listening on port %d", s.cfg.UDPPort)

	s.group.Go(func() error {
		s.discoverer.Run()
		return nil
	})

	s.group.Go(func() error {
		return discovery.Announce(s.cfg.Identity, s.cfg.Announce)
	})

	s.group.Go(func() error {
		s.acceptLoop()
		return nil
	})

	return nil
}

// TCPAddr returns the bound TCP address after Start.
func (s *Server) TCPAddr() *net.TCPAddr {
	if s.tcpListener == nil {
		return nil
	}
	addr, _ := s.tcpListener.Addr().(*net.TCPAddr)
	return addr
}

// Stop flips the running flag, closes both sockets (unblocking accept and
// the discovery listener's recv), closes every live connection, and joins
// every spawned goroutine.
func (s *Server) Stop() error {
	s.cancel()

	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	if s.discoverer != nil {
		s.discoverer.Close()
	}
	if s.events != nil {
		s.events.Close()
	}

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close(connctx.ServerShutdownReason)
	}
	s.connsMu.Unlock()

	err := s.group.Wait()
	s.wg.Wait()
	s.logger.Printf("server: stopped")
	return err
}

func (s *Server) acceptLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.tcpListener.SetDeadline(time.Now().Add(time.Second))
		conn, err := s.tcpListener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Printf("server: accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn *net.TCPConn) {
	defer s.wg.Done()
	defer netConn.Close()

	remote := netConn.RemoteAddr().String()
	s.logger.Printf("server: accepted connection from %s", remote)

	timers := timer.NewManager()
	defer timers.Stop()

	ctx := connctx.NewConnection(nil, s.cfg.Identity.LogicalAddress)
	session := tcpsession.NewSession(netConn, ctx, s.cfg.MaxMessageSize, s.logger)
	ctx.SetSender(session)

	machine := fsm.NewMachine(ctx, timers, s.cfg.Timers, s.logger)
	if s.events != nil {
		machine.SetNotifier(func(state fsm.State) {
			s.events.Publish(tui.ServerEvent{
				Kind:      tui.StateChanged,
				ConnID:    remote,
				State:     state.String(),
				Timestamp: time.Now(),
			})
		})
	}

	model := s.modelFactory()
	resume := func(response *doip.Message) {
		ctx.ReceiveDownstreamResponse(response)
	}
	lifecycle, diagnostic, downstream := appmodel.Adapt(model, resume)
	ctx.Bind(machine, lifecycle, diagnostic, downstream)

	s.connsMu.Lock()
	s.conns[ctx] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, ctx)
		s.connsMu.Unlock()
	}()

	if s.events != nil {
		s.events.Publish(tui.ServerEvent{Kind: tui.ConnectionOpened, ConnID: remote, State: machine.State().String(), Timestamp: time.Now()})
	}

	ctx.NotifyOpen()
	machine.Start()

	session.Run()
	s.logger.Printf("server: connection from %s ended (%s)", remote, ctx.CloseReason())

	if s.events != nil {
		s.events.Publish(tui.ServerEvent{Kind: tui.ConnectionClosed, ConnID: remote, State: machine.State().String(), Timestamp: time.Now(), Detail: ctx.CloseReason().String()})
	}
}
