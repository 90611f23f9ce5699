package gatherwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/gather"
	"github.com/tuannm99/novagather/internal/metrics"
)

// Executor runs one query on a node. It returns the still-open builder so
// the server can stamp node metadata before sealing.
type Executor interface {
	Execute(ctx context.Context, req gather.Request) (*datatable.Builder, error)
}

type ServerConfig struct {
	Addr         string
	NodeID       string
	Compress     bool
	WireVersion  int32
	MaxFrameSize int
	Registry     *datatable.ObjectRegistry
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func (sc *ServerConfig) setDefaults() {
	if sc.WireVersion == 0 {
		sc.WireVersion = datatable.DefaultVersion
	}
	if sc.MaxFrameSize <= 0 {
		sc.MaxFrameSize = MaxFrameSize
	}
	if sc.Registry == nil {
		sc.Registry = datatable.NewObjectRegistry()
	}
	if sc.Metrics == nil {
		sc.Metrics = metrics.New(nil)
	}
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}
}

// Run listens on sc.Addr and serves until SIGINT or SIGTERM.
func Run(sc ServerConfig, ex Executor) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, ln, sc, ex)
}

// Serve accepts connections on ln until ctx is done. It closes ln.
func Serve(ctx context.Context, ln net.Listener, sc ServerConfig, ex Executor) error {
	if !datatable.SupportedVersion(sc.WireVersion) && sc.WireVersion != 0 {
		_ = ln.Close()
		return fmt.Errorf("gatherwire: %w: %d", datatable.ErrUnsupportedVersion, sc.WireVersion)
	}
	sc.setDefaults()
	s := &server{cfg: sc, ex: ex, log: sc.Logger.With("node", sc.NodeID)}
	defer func() { _ = ln.Close() }()

	s.log.Info("gatherwire: node listening", "addr", ln.Addr().String(), "version", sc.WireVersion, "compress", sc.Compress)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("gatherwire: accept", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

type server struct {
	cfg ServerConfig
	ex  Executor
	log *slog.Logger
}

func (s *server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var req QueryRequest
		if err := ReadFrame(conn, &req); err != nil {
			// Client closed or bad frame.
			return
		}

		payload := s.answer(ctx, req)
		if err := WritePayload(conn, req.ID, payload, s.cfg.Compress, s.cfg.MaxFrameSize); err != nil {
			s.log.Warn("gatherwire: write response", "requestId", req.RequestID, "err", err)
			return
		}
	}
}

// answer always yields a decodable DataTable; failures travel as exception
// metadata.
func (s *server) answer(ctx context.Context, req QueryRequest) []byte {
	start := time.Now()
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	b, execErr := s.ex.Execute(ctx, gather.Request{RequestID: req.RequestID, Query: req.Query, Limit: req.Limit})
	payload, err := s.seal(b, execErr, req, start)
	if err != nil {
		// the result itself could not be sent; report that instead
		execErr = err
		payload, _ = s.seal(nil, err, req, start)
	}

	status := "ok"
	if execErr != nil || b == nil {
		status = "exception"
	}
	s.cfg.Metrics.Queries.WithLabelValues(status).Inc()
	s.log.Debug("gatherwire: answered",
		"requestId", req.RequestID,
		"status", status,
		"size", humanize.Bytes(uint64(len(payload))),
		"elapsed", time.Since(start),
	)
	return payload
}

func (s *server) seal(b *datatable.Builder, execErr error, req QueryRequest, start time.Time) ([]byte, error) {
	if execErr != nil || b == nil {
		msg := "no result"
		if execErr != nil {
			msg = execErr.Error()
		}
		b = datatable.NewBuilder(datatable.Schema{}, datatable.WithRegistry(s.cfg.Registry))
		b.SetMetadata(datatable.MetaException, msg)
		s.log.Warn("gatherwire: query failed", "requestId", req.RequestID, "err", msg)
	}
	b.SetMetadata(datatable.MetaNodeID, s.cfg.NodeID)
	if req.RequestID != "" {
		b.SetMetadata(datatable.MetaRequestID, req.RequestID)
	}
	b.SetMetadata(datatable.MetaTimeUsedMs, strconv.FormatInt(time.Since(start).Milliseconds(), 10))

	payload, err := datatable.Encode(b.Seal(), datatable.WithVersion(s.cfg.WireVersion), datatable.WithRegistry(s.cfg.Registry))
	if err != nil {
		return nil, err
	}
	// leave room for the payload header
	if len(payload)+payloadHeaderSize > s.cfg.MaxFrameSize && !s.cfg.Compress {
		return nil, fmt.Errorf("gatherwire: result is %s, frame limit %s",
			humanize.Bytes(uint64(len(payload))), humanize.Bytes(uint64(s.cfg.MaxFrameSize)))
	}
	return payload, nil
}
