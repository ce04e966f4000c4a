package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gymbridge/gymbridge/internal/metrics"
)

// Endpoint is a loopback listener that receives framed JSON from one
// streaming script and publishes decoded messages to the hub. It is bound
// before the script is spawned, so the child always has a live address to
// connect to and no early frame is lost.
type Endpoint struct {
	ln            net.Listener
	hub           *Hub
	defaultStream string
	logger        *slog.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewEndpoint binds a fresh loopback port and starts accepting connections.
// defaultStream attributes flat frames that carry no stream_id of their own.
func NewEndpoint(hub *Hub, defaultStream string, logger *slog.Logger) (*Endpoint, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind stream endpoint: %w", err)
	}

	e := &Endpoint{
		ln:            ln,
		hub:           hub,
		defaultStream: defaultStream,
		logger: logger.WithGroup("stream.Endpoint").With(
			"stream_id", defaultStream,
			"addr", ln.Addr().String(),
		),
		conns: make(map[net.Conn]struct{}),
	}

	e.wg.Add(1)
	go e.acceptLoop()
	return e, nil
}

// Addr returns the bound address in host:port form, for the child's
// environment.
func (e *Endpoint) Addr() string {
	return e.ln.Addr().String()
}

// Close stops accepting, drops every live connection, and waits for reader
// goroutines to finish. Closing an already-closed endpoint reports
// ErrEndpointClosed.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEndpointClosed
	}
	e.closed = true
	for conn := range e.conns {
		_ = conn.Close()
	}
	e.mu.Unlock()

	err := e.ln.Close()
	e.wg.Wait()
	return err
}

func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()

	for {
		conn, err := e.ln.Accept()
		if err != nil {
			if !e.isClosed() && !errors.Is(err, net.ErrClosed) {
				e.logger.Error("endpoint accept failed", "error", err)
			}
			return
		}

		if !e.track(conn) {
			_ = conn.Close()
			return
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.untrack(conn)
			e.readConn(conn)
		}()
	}
}

// readConn decodes frames until the connection ends. A malformed JSON frame
// is dropped and counted; an oversized header poisons the byte stream, so
// the whole connection is dropped.
func (e *Endpoint) readConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	e.logger.Debug("stream connection opened", "remote", conn.RemoteAddr())

	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				e.logger.Debug("stream connection closed by peer")
			case errors.Is(err, ErrFrameTooLarge):
				metrics.StreamFramesDropped.WithLabelValues(metrics.DropReasonOversize).Inc()
				e.logger.Warn("dropping stream connection", "error", err)
			case e.isClosed() || errors.Is(err, net.ErrClosed):
			default:
				e.logger.Warn("stream connection read failed", "error", err)
			}
			return
		}

		msg, err := DecodeMessage(payload, e.defaultStream, time.Now())
		if err != nil {
			metrics.StreamFramesDropped.WithLabelValues(metrics.DropReasonDecode).Inc()
			e.logger.Warn("dropping malformed stream frame", "error", err)
			continue
		}
		e.hub.Publish(msg)
	}
}

func (e *Endpoint) track(conn net.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.conns[conn] = struct{}{}
	return true
}

func (e *Endpoint) untrack(conn net.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, conn)
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
