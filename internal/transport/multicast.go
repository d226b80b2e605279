package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"github.com/peder1981/p2p-presence/internal/envelope"
)

const (
	// DefaultGroup is the administratively scoped group used when none is configured.
	DefaultGroup = "239.255.77.77:7777"

	maxDatagram      = 65507
	defaultDedupSize = 4096
	readRetryDelay   = 100 * time.Millisecond
)

// packetReader is the receiving half of the group socket.
type packetReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// MulticastConfig configures a Multicast transport.
type MulticastConfig struct {
	// Group is the multicast "ip:port" to join.
	Group string
	// Interface names the NIC to join on; empty lets the kernel choose.
	Interface string
	// TTL of outgoing datagrams; 1 keeps traffic on the local link.
	TTL int
	// DedupSize bounds the duplicate-frame cache.
	DedupSize int
}

// frame is one datagram on the wire.
type frame struct {
	Channel  string            `json:"channel"`
	FrameID  string            `json:"frameId"`
	Envelope envelope.Envelope `json:"envelope"`
}

// Multicast is a broadcast medium over UDP multicast on the local network.
// Every process joined to the group, this one included, sees every frame.
type Multicast struct {
	group  *net.UDPAddr
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	seen   *lru.Cache[string, struct{}]
	logger *zap.Logger

	mu     sync.RWMutex
	next   uint64
	subs   map[string]map[uint64]Handler
	closed bool

	loops errgroup.Group
}

// NewMulticast joins the configured group. Failures to resolve, join or
// configure the socket wrap ErrTransportUnsupported.
func NewMulticast(cfg MulticastConfig, logger *zap.Logger) (*Multicast, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 1
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = defaultDedupSize
	}

	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve group %q: %v", ErrTransportUnsupported, cfg.Group, err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("%w: %s is not a multicast address", ErrTransportUnsupported, group.IP)
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %q: %v", ErrTransportUnsupported, cfg.Interface, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s: %v", ErrTransportUnsupported, group, err)
	}
	pconn := ipv4.NewPacketConn(conn)
	if err := configure(pconn, ifi, cfg.TTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrTransportUnsupported, err)
	}

	seen, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		conn.Close()
		return nil, err
	}

	m := &Multicast{
		group:  group,
		conn:   conn,
		pconn:  pconn,
		seen:   seen,
		logger: logger.Named("multicast"),
		subs:   make(map[string]map[uint64]Handler),
	}
	m.loops.Go(func() error { return m.readLoop(conn) })
	m.logger.Info("joined multicast group", zap.Stringer("group", group), zap.String("interface", cfg.Interface))
	return m, nil
}

func configure(pconn *ipv4.PacketConn, ifi *net.Interface, ttl int) error {
	var errs error
	if err := pconn.SetMulticastLoopback(true); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("enable loopback: %w", err))
	}
	if err := pconn.SetMulticastTTL(ttl); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("set ttl: %w", err))
	}
	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("set interface: %w", err))
		}
	}
	return errs
}

// Subscribe attaches h to channel.
func (m *Multicast) Subscribe(channel string, h Handler) (Subscription, error) {
	if channel == "" {
		return nil, fmt.Errorf("subscribe: empty channel name")
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe: nil handler")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.next++
	id := m.next
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[uint64]Handler)
	}
	m.subs[channel][id] = h

	var once sync.Once
	return &subscription{cancel: func() error {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[channel], id)
			if len(m.subs[channel]) == 0 {
				delete(m.subs, channel)
			}
		})
		return nil
	}}, nil
}

// Publish sends env to the group as a single datagram.
func (m *Multicast) Publish(channel string, env envelope.Envelope) error {
	if m.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(frame{Channel: channel, FrameID: uuid.NewString(), Envelope: env})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(data) > maxDatagram {
		return fmt.Errorf("%w: frame of %d bytes exceeds datagram limit", envelope.ErrInvalidMessage, len(data))
	}
	if _, err := m.conn.WriteToUDP(data, m.group); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// readLoop receives until the socket is closed. Other read errors, such as
// ICMP errors surfacing on the socket, are logged and reading resumes.
func (m *Multicast) readLoop(r packetReader) error {
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := r.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || m.isClosed() {
				return nil
			}
			m.logger.Warn("read frame failed", zap.Error(err))
			time.Sleep(readRetryDelay)
			continue
		}
		m.dispatch(buf[:n], src)
	}
}

func (m *Multicast) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Multicast) dispatch(data []byte, src *net.UDPAddr) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.logger.Debug("dropping undecodable frame", zap.Stringer("src", src), zap.Error(err))
		return
	}
	if err := f.Envelope.Validate(); err != nil {
		m.logger.Debug("dropping invalid envelope", zap.Stringer("src", src), zap.Error(err))
		return
	}
	// The same datagram can arrive once per joined interface.
	if f.FrameID != "" {
		if dup, _ := m.seen.ContainsOrAdd(f.FrameID, struct{}{}); dup {
			return
		}
	}

	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[f.Channel]))
	for _, h := range m.subs[f.Channel] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(f.Envelope)
	}
}

// LocalAddr returns the socket's bound address.
func (m *Multicast) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Close leaves the group and waits for the receive loop to exit.
func (m *Multicast) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.subs = make(map[string]map[uint64]Handler)
	m.mu.Unlock()

	err := m.conn.Close()
	return multierr.Append(err, m.loops.Wait())
}
