// Package ipcproto implements the daemon's local wire protocol: single-line
// commands answered with raw, unenveloped bytes. It deliberately reuses no
// RPC/transport-framing library — see DESIGN.md for why gRPC, protobuf, and
// HTTP-router style stacks seen elsewhere in the reference corpus don't fit
// a protocol whose entire point is that responses carry no envelope.
package ipcproto

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aurynx/discovery/pkg/logging"
)

// idleReadTimeout bounds how long a connection may sit without sending a
// complete command line, preventing a stuck client from tying up a
// goroutine and file descriptor indefinitely.
const idleReadTimeout = 5 * time.Second

// ArtifactSource supplies the current CacheArtifact bytes for getCacheCode.
type ArtifactSource interface {
	Get() ([]byte, error)
}

// StatsSource supplies the daemon's current summary for the stats command.
type StatsSource interface {
	Stats() Stats
}

// ConnectionTracker receives open/close notifications for every accepted
// connection, backing the "stats" command's connection gauge. It is
// satisfied by *metrics.Registry without an import cycle.
type ConnectionTracker interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Stats is the daemon-wide summary returned by the stats command. Process
// RSS and uptime are sourced from gopsutil; the file, rescan, and connection
// counts come from the Supervisor's prometheus counters; the symbol count,
// last build time, and strategy come from the Supervisor's index, build
// timestamp, and cache store.
type Stats struct {
	SymbolCount   int
	LastBuildTime time.Time
	Strategy      string
	FilesScanned  int64
	FilesSkipped  int64
	Rescans       int64
	Connections   int64
}

// Server accepts IPC connections and answers the three commands over a
// byte-literal line protocol: ping, getCacheCode, stats.
type Server struct {
	listener net.Listener
	artifact ArtifactSource
	stats    StatsSource
	tracker  ConnectionTracker
	logger   *logging.Logger

	inFlight sync.WaitGroup
}

// NewServer constructs a Server around an already-bound listener (see
// pkg/ipcsock.NewListener). tracker may be nil, in which case connections
// simply aren't counted.
func NewServer(listener net.Listener, artifact ArtifactSource, stats StatsSource, tracker ConnectionTracker, logger *logging.Logger) *Server {
	return &Server{listener: listener, artifact: artifact, stats: stats, tracker: tracker, logger: logger}
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine. It returns once the listener returns a permanent error,
// which is the expected outcome of Close being called by Shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.inFlight.Add(1)
		go s.handle(conn)
	}
}

// Shutdown stops accepting new connections by closing the listener, then
// blocks until every in-flight handle goroutine has returned. Serve's
// Accept loop will observe the closed listener and return shortly after
// this is called.
func (s *Server) Shutdown() {
	s.listener.Close()
	s.inFlight.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer s.inFlight.Done()
	defer conn.Close()
	if s.tracker != nil {
		s.tracker.ConnectionOpened()
		defer s.tracker.ConnectionClosed()
	}

	conn.SetReadDeadline(time.Now().Add(idleReadTimeout))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		// Empty read (including immediate EOF) isn't a protocol violation
		// worth a response; the peer simply closed without sending anything.
		return
	}
	command := strings.TrimRight(line, "\n\r")

	switch command {
	case "ping":
		s.respond(conn, []byte("pong\n"))
	case "getCacheCode":
		artifact, err := s.artifact.Get()
		if err != nil {
			s.respondError(conn, err)
			return
		}
		s.respond(conn, artifact)
	case "stats":
		s.respond(conn, []byte(renderStats(s.stats.Stats())))
	default:
		s.respondError(conn, fmt.Errorf("unknown command %q", command))
	}
}

func (s *Server) respond(conn net.Conn, payload []byte) {
	if _, err := conn.Write(payload); err != nil {
		s.logger.Debugf("unable to write response: %s", err)
	}
}

func (s *Server) respondError(conn net.Conn, cause error) {
	s.respond(conn, []byte(fmt.Sprintf("ERROR: %s\n", cause)))
}

// renderStats produces the human-readable line-oriented summary for the
// stats command, enriched with process RSS and uptime sourced from gopsutil.
func renderStats(stats Stats) string {
	rssBytes, uptime := processVitals()

	var b strings.Builder
	fmt.Fprintf(&b, "symbols: %d\n", stats.SymbolCount)
	fmt.Fprintf(&b, "last_build: %s\n", stats.LastBuildTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "strategy: %s\n", stats.Strategy)
	fmt.Fprintf(&b, "files_scanned: %d\n", stats.FilesScanned)
	fmt.Fprintf(&b, "files_skipped: %d\n", stats.FilesSkipped)
	fmt.Fprintf(&b, "rescans: %d\n", stats.Rescans)
	fmt.Fprintf(&b, "connections: %d\n", stats.Connections)
	fmt.Fprintf(&b, "rss_bytes: %d\n", rssBytes)
	fmt.Fprintf(&b, "uptime: %s\n", uptime.Round(time.Second))
	return b.String()
}
