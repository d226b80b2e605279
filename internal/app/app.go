// Package app assembles the presence daemon from its parts with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/advertise"
	"github.com/peder1981/p2p-presence/internal/config"
	"github.com/peder1981/p2p-presence/internal/logging"
	"github.com/peder1981/p2p-presence/internal/metrics"
	"github.com/peder1981/p2p-presence/internal/node"
	"github.com/peder1981/p2p-presence/internal/transport"
)

// Module provides the logger, transport, metrics, node, metrics endpoint
// and mDNS advertisement for cfg.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("presence",
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewTransport,
			NewRegistry,
			NewMetrics,
			NewNode,
			NewMetricsServer,
		),
		fx.Invoke(
			func(*MetricsServer) {},
			Advertise,
			LogTraffic,
		),
	)
}

// WithZapLogger routes fx's own events through the daemon logger.
func WithZapLogger() fx.Option {
	return fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	})
}

// NewLogger builds the daemon logger from the [log] section.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	l, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		// Sync fails on terminals; nothing to do about it.
		_ = l.Sync()
	}))
	return l, nil
}

// NewTransport opens the broadcast medium named by [transport].
func NewTransport(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (transport.Transport, error) {
	var (
		tr     transport.Transport
		closer io.Closer
	)
	switch cfg.Transport.Kind {
	case config.TransportMemory:
		hub := transport.NewHub()
		tr, closer = hub, hub
	case config.TransportMulticast:
		m, err := transport.NewMulticast(transport.MulticastConfig{
			Group:     cfg.Transport.Group,
			Interface: cfg.Transport.Interface,
		}, logger)
		if err != nil {
			return nil, err
		}
		tr, closer = m, m
	default:
		return nil, fmt.Errorf("%w: kind %q", transport.ErrTransportUnsupported, cfg.Transport.Kind)
	}
	lc.Append(fx.StopHook(closer.Close))
	return tr, nil
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers the presence collectors.
func NewMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

// NewNode prepares the node for the configured channel. It joins on start,
// after every listener has been registered, and leaves on stop.
func NewNode(lc fx.Lifecycle, cfg *config.Config, tr transport.Transport, logger *zap.Logger, m *metrics.Metrics) (*node.Node, error) {
	n, err := node.Prepare(tr, node.Options{
		ChannelName:       cfg.Presence.Channel,
		RegistrationID:    cfg.Presence.RegistrationID,
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		StaleAfter:        cfg.Presence.StaleAfter,
		Logger:            logger.Named("node"),
		Metrics:           m,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StartStopHook(n.Join, n.Close))
	return n, nil
}

// MetricsServer serves /metrics over HTTP.
type MetricsServer struct {
	srv  *http.Server
	addr net.Addr
}

// Addr returns the bound address once started, or nil.
func (s *MetricsServer) Addr() net.Addr {
	if s == nil {
		return nil
	}
	return s.addr
}

// NewMetricsServer serves reg on [metrics] listen. It returns nil when no
// address is configured.
func NewMetricsServer(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	if cfg.Metrics.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	s := &MetricsServer{srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Metrics.Listen)
			if err != nil {
				return fmt.Errorf("metrics listen: %w", err)
			}
			s.addr = ln.Addr()
			go func() {
				if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server stopped", zap.Error(err))
				}
			}()
			logger.Info("serving metrics", zap.Stringer("addr", s.addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	})
	return s
}

// Advertise registers the node over mDNS when [mdns] is enabled. A failed
// registration is logged, not fatal.
func Advertise(lc fx.Lifecycle, cfg *config.Config, n *node.Node, logger *zap.Logger) {
	if !cfg.MDNS.Enabled {
		return
	}
	var adv *advertise.Advertiser
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			adv, err = advertise.Register(advertise.Info{
				Instance:   cfg.MDNS.Instance,
				Channel:    n.ChannelName(),
				InternalID: n.InternalID(),
				Alias:      n.RegistrationID(),
				Port:       groupPort(cfg.Transport.Group),
			}, logger.Named("mdns"))
			if err != nil {
				logger.Warn("mdns advertisement disabled", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			adv.Shutdown()
			return nil
		},
	})
}

func groupPort(group string) int {
	_, port, err := net.SplitHostPort(group)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return p
}

// LogTraffic logs membership changes and received messages.
func LogTraffic(n *node.Node, logger *zap.Logger) {
	logger = logger.Named("traffic")
	n.OnPeerConnected(func(id string) {
		logger.Info("peer connected", zap.String("peer", id), zap.Strings("peers", n.Peers()))
	})
	n.OnPeerDisconnected(func(id string) {
		logger.Info("peer disconnected", zap.String("peer", id), zap.Strings("peers", n.Peers()))
	})
	n.OnMessage(func(m node.Message) {
		logger.Info("message",
			zap.String("from", m.From),
			zap.String("type", m.Type),
			zap.Bool("broadcast", m.Broadcast()),
			zap.ByteString("payload", m.Payload))
	})
	n.OnError(func(err error) {
		logger.Warn("node error", zap.Error(err))
	})
}
