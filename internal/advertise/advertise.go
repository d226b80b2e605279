// Package advertise publishes a running instance over mDNS so LAN tooling
// can list who is on which channel, and browses for such instances.
//
// mDNS only makes instances visible. Membership itself is always learned
// through the presence protocol on the channel.
package advertise

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// Service is the DNS-SD service type instances register under.
	Service = "_p2p-presence._udp"
	// Domain is the mDNS domain.
	Domain = "local."
)

// Info is what an instance advertises about itself.
type Info struct {
	Instance   string
	Channel    string
	InternalID string
	Alias      string
	Port       int
}

// Text encodes info as DNS-SD TXT records. Empty fields are omitted.
func (i Info) Text() []string {
	var txt []string
	if i.Channel != "" {
		txt = append(txt, "channel="+i.Channel)
	}
	if i.InternalID != "" {
		txt = append(txt, "id="+i.InternalID)
	}
	if i.Alias != "" {
		txt = append(txt, "alias="+i.Alias)
	}
	return txt
}

// ParseText fills the TXT-derived fields of an Info. Unknown keys are ignored.
func ParseText(txt []string) Info {
	var info Info
	for _, kv := range txt {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "channel":
			info.Channel = value
		case "id":
			info.InternalID = value
		case "alias":
			info.Alias = value
		}
	}
	return info
}

// Advertiser keeps one mDNS registration alive.
type Advertiser struct {
	server *zeroconf.Server
	logger *zap.Logger
}

// Register announces info on every multicast-capable interface.
func Register(info Info, logger *zap.Logger) (*Advertiser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.Instance == "" {
		info.Instance = "p2p-presence-" + info.InternalID
	}
	server, err := zeroconf.Register(info.Instance, Service, Domain, info.Port, info.Text(), interfaces())
	if err != nil {
		return nil, fmt.Errorf("mdns register %q: %w", info.Instance, err)
	}
	logger.Info("advertising over mdns",
		zap.String("instance", info.Instance), zap.String("service", Service), zap.Int("port", info.Port))
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown withdraws the registration. It is safe to call more than once.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Debug("mdns registration withdrawn")
}

// Browse lists the instances that answer within timeout, sorted by instance
// name.
func Browse(ctx context.Context, timeout time.Duration) ([]Info, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]Info{}
	)
	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			info := ParseText(entry.Text)
			info.Instance = entry.Instance
			info.Port = entry.Port
			mu.Lock()
			seen[entry.Instance] = info
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		close(entries)
		<-done
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	// The resolver closes entries on its own once ctx ends.
	select {
	case <-ctx.Done():
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	found := make([]Info, 0, len(seen))
	for _, info := range seen {
		found = append(found, info)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })
	return found, nil
}

// interfaces returns the up, multicast-capable, non-loopback interfaces, or
// nil to let zeroconf pick.
func interfaces() []net.Interface {
	all, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		out = append(out, ifi)
	}
	return out
}
