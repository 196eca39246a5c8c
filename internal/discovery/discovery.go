// Package discovery finds cast-capable screens on the local network with a
// one-shot mDNS browse.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"

	appLog "castcal/internal/log"
)

const (
	// CastPort is the TCP port cast devices accept control connections on.
	CastPort = 8009
	// ServiceName is the DNS-SD service cast devices advertise.
	ServiceName = "_googlecast._tcp.local."

	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 1500 * time.Millisecond

	unnamed = "UNNAMED"
)

// mdnsGroup is the IPv4 mDNS multicast destination.
var mdnsGroup = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

var friendlyNamePattern = regexp.MustCompile(`\bfn=([^;"]+)`)

// Device is one discovered screen.
type Device struct {
	Addr     netip.AddrPort `json:"addr"`
	Name     string         `json:"name"`
	Hostname string         `json:"hostname"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Name, d.Hostname, d.Addr)
}

// Scanner sends PTR queries for ServiceName and decodes the answers.
type Scanner struct {
	// Group is where queries are sent. Nil means the mDNS multicast group.
	Group *net.UDPAddr
	// PollInterval is how often the query is repeated.
	PollInterval time.Duration
}

// NewScanner returns a Scanner for the standard mDNS group.
func NewScanner() *Scanner {
	return &Scanner{Group: mdnsGroup, PollInterval: DefaultPollInterval}
}

// ScanOnce browses for timeout and returns each device once, sorted by
// name then address.
func ScanOnce(ctx context.Context, timeout time.Duration) ([]Device, error) {
	return NewScanner().ScanOnce(ctx, timeout)
}

// ScanOnce browses for timeout and returns each device once.
func (s *Scanner) ScanOnce(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[Device]struct{})
	err := s.Scan(ctx, func(d Device) {
		seen[d] = struct{}{}
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	return sortedDevices(seen), nil
}

// Scan queries every PollInterval and calls found for each device in every
// answer until ctx is done. found may see the same device many times. Scan
// returns ctx.Err() when the context ends.
func (s *Scanner) Scan(ctx context.Context, found func(Device)) error {
	group := s.Group
	if group == nil {
		group = mdnsGroup
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	query, err := buildQuery()
	if err != nil {
		return err
	}

	// Queries from an ephemeral port are answered by unicast to that port.
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("discovery: listen: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(255); err != nil {
		appLog.Debug("discovery: set multicast ttl failed", "err", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		appLog.Debug("discovery: set multicast loopback failed", "err", err)
	}

	buf := make([]byte, 9000)
	nextQuery := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := time.Now()
		if !now.Before(nextQuery) {
			if _, err := pc.WriteTo(query, nil, group); err != nil {
				return fmt.Errorf("discovery: send query: %w", err)
			}
			nextQuery = now.Add(interval)
		}

		deadline := nextQuery
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := pc.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("discovery: %w", err)
		}

		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("discovery: read: %w", err)
		}

		var from netip.Addr
		if udp, ok := src.(*net.UDPAddr); ok {
			from, _ = netip.AddrFromSlice(udp.IP.To4())
		}

		devices, err := ParseResponse(buf[:n], from)
		if err != nil {
			appLog.Debug("discovery: ignoring malformed packet", "err", err, "from", src)
			continue
		}
		for _, d := range devices {
			found(d)
		}
	}
}

func buildQuery() ([]byte, error) {
	name, err := dnsmessage.NewName(ServiceName)
	if err != nil {
		return nil, err
	}

	b := dnsmessage.NewBuilder(make([]byte, 0, 64), dnsmessage.Header{})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if err := b.Question(dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypePTR,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return nil, err
	}
	return b.Finish()
}

// ParseResponse extracts cast devices from one mDNS response. from is the
// packet's source, used when the response carries no A record for the
// device's host.
func ParseResponse(msg []byte, from netip.Addr) ([]Device, error) {
	var p dnsmessage.Parser

	hdr, err := p.Start(msg)
	if err != nil {
		return nil, err
	}
	if !hdr.Response {
		return nil, nil
	}
	if err := p.SkipAllQuestions(); err != nil {
		return nil, err
	}

	var (
		instances []string
		targets   = map[string]string{}
		txts      = map[string][]string{}
		addrs     = map[string]netip.Addr{}
	)

	collect := func(next func() (dnsmessage.Resource, error)) error {
		for {
			r, err := next()
			if errors.Is(err, dnsmessage.ErrSectionDone) {
				return nil
			}
			if err != nil {
				return err
			}

			owner := strings.ToLower(r.Header.Name.String())
			switch body := r.Body.(type) {
			case *dnsmessage.PTRResource:
				if owner == ServiceName {
					instances = append(instances, strings.ToLower(body.PTR.String()))
				}
			case *dnsmessage.SRVResource:
				targets[owner] = body.Target.String()
			case *dnsmessage.TXTResource:
				txts[owner] = append(txts[owner], body.TXT...)
			case *dnsmessage.AResource:
				if _, ok := addrs[owner]; !ok {
					addrs[owner] = netip.AddrFrom4(body.A)
				}
			}
		}
	}

	if err := collect(p.Answer); err != nil {
		return nil, err
	}
	if err := p.SkipAllAuthorities(); err != nil {
		return nil, err
	}
	if err := collect(p.Additional); err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		for instance := range targets {
			instances = append(instances, instance)
		}
		sort.Strings(instances)
	}

	devices := make([]Device, 0, len(instances))
	for _, instance := range instances {
		host, ok := targets[instance]
		if !ok {
			continue
		}

		ip, ok := addrs[strings.ToLower(host)]
		if !ok {
			ip = from
		}
		if !ip.IsValid() {
			continue
		}

		name, ok := FriendlyName(txts[instance])
		if !ok {
			name = unnamed
		}

		devices = append(devices, Device{
			Addr:     netip.AddrPortFrom(ip, CastPort),
			Name:     name,
			Hostname: host,
		})
	}

	return devices, nil
}

// FriendlyName returns the first fn= value in TXT strings.
func FriendlyName(txt []string) (string, bool) {
	for _, s := range txt {
		if m := friendlyNamePattern.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func sortedDevices(seen map[Device]struct{}) []Device {
	out := make([]Device, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Addr.String() < out[j].Addr.String()
	})
	return out
}
