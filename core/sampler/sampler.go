package sampler

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.uber.org/zap"

	"example.com/ntp-check/base/metrics"
	"example.com/ntp-check/base/timemath"
	"example.com/ntp-check/core/timebase"
	"example.com/ntp-check/net/ntp"
	"example.com/ntp-check/net/udp"
)

const (
	// DefaultSampleTarget is the number of responses collected per peer to
	// get a usable average.
	DefaultSampleTarget = 4

	pollInterval = 100 * time.Millisecond
	resendAfter  = time.Second
)

type Family int

const (
	FamilyUnspecified Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) network() string {
	switch f {
	case FamilyIPv4:
		return "ip4"
	case FamilyIPv6:
		return "ip6"
	default:
		return "ip"
	}
}

type Config struct {
	Host string
	Port string
	// Family restricts resolution to one address family.
	Family Family
	// Timeout is the configured socket timeout. The sampling session
	// itself runs for at most half of it, leaving room for selection and
	// post-processing.
	Timeout time.Duration
	// TimeOffset is the expected offset of the peers relative to the
	// local clock; it is added to every recorded sample.
	TimeOffset time.Duration
	// SampleTarget is the number of responses collected per peer;
	// DefaultSampleTarget when zero.
	SampleTarget int
	// Histo, when set, records request-to-response latencies in
	// microseconds.
	Histo *hdrhistogram.Histogram
}

// PeerResult holds what one resolved peer address reported over a sampling
// session. A peer whose association failed or that never responded keeps
// Responses == 0 and zeroed metadata.
type PeerResult struct {
	Addr       string
	Responses  int
	Stratum    uint8
	Flags      uint8
	Delay      float64
	Dispersion float64
	Offsets    []float64
}

func (r *PeerResult) LeapIndicator() uint8 {
	return (r.Flags >> 6) & 0b0000_0011
}

type samplerMetrics struct {
	reqsSent         prometheus.Counter
	pktsReceived     prometheus.Counter
	pktsMalformed    prometheus.Counter
	peersUnreachable prometheus.Counter
}

func newSamplerMetrics() *samplerMetrics {
	return &samplerMetrics{
		reqsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SamplerReqsSentN,
			Help: metrics.SamplerReqsSentH,
		}),
		pktsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SamplerPktsReceivedN,
			Help: metrics.SamplerPktsReceivedH,
		}),
		pktsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SamplerPktsMalformedN,
			Help: metrics.SamplerPktsMalformedH,
		}),
		peersUnreachable: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SamplerPeersUnreachableN,
			Help: metrics.SamplerPeersUnreachableH,
		}),
	}
}

var samplerMtrcs atomic.Pointer[samplerMetrics]

func init() {
	samplerMtrcs.Store(newSamplerMetrics())
}

type peer struct {
	addr *net.UDPAddr
	conn *net.UDPConn // nil when the association failed
	// waiting is the send time of the outstanding request, zero when no
	// response is expected.
	waiting time.Time
	result  PeerResult
}

type datagram struct {
	peer   int
	buf    []byte
	rxTime time.Time
}

func resolve(ctx context.Context, log *zap.Logger, cfg Config) ([]*net.UDPAddr, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, cfg.Family.network(), cfg.Host)
	if err != nil {
		log.Info("failed to resolve host", zap.String("host", cfg.Host), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	if len(ips) == 0 {
		log.Info("host resolved to no addresses", zap.String("host", cfg.Host))
		return nil, ErrResolution
	}
	port := ntp.ServerPort
	if cfg.Port != "" {
		port, err = net.DefaultResolver.LookupPort(ctx, "udp", cfg.Port)
		if err != nil {
			log.Info("failed to resolve port", zap.String("port", cfg.Port), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrResolution, err)
		}
	}
	addrs := make([]*net.UDPAddr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, &net.UDPAddr{IP: ip, Port: port})
	}
	return addrs, nil
}

// Sample resolves cfg.Host and collects up to cfg.SampleTarget offset
// samples from every resolved address within half of cfg.Timeout. One
// session loop owns all peer state; it sends at most one request per pass
// and drains whatever responses are ready before the next pass. Results
// are returned in resolution order, one entry per address, including peers
// that never responded. It fails with ErrNoResponse only when not a single
// datagram arrived session-wide.
func Sample(ctx context.Context, log *zap.Logger, cfg Config) ([]PeerResult, error) {
	mtrcs := samplerMtrcs.Load()

	target := cfg.SampleTarget
	if target <= 0 {
		target = DefaultSampleTarget
	}

	addrs, err := resolve(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	start := timebase.Now()
	deadline := start.Add(cfg.Timeout / 2)

	peers := make([]peer, len(addrs))
	msgs := make(chan datagram, len(addrs))
	done := make(chan struct{})
	defer close(done)

	for i, addr := range addrs {
		peers[i].addr = addr
		peers[i].result.Addr = addr.String()
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			// One reachable peer is enough. A dual-stack host may
			// have one family unreachable.
			mtrcs.peersUnreachable.Inc()
			log.Info("failed to associate with peer",
				zap.Stringer("peer", addr), zap.Error(err))
			continue
		}
		err = conn.SetReadDeadline(deadline)
		if err != nil {
			mtrcs.peersUnreachable.Inc()
			log.Info("failed to arm socket deadline",
				zap.Stringer("peer", addr), zap.Error(err))
			conn.Close()
			continue
		}
		defer conn.Close()
		peers[i].conn = conn
		err = udp.EnableRxTimestamps(conn)
		if err != nil {
			log.Debug("failed to enable RX timestamps",
				zap.Stringer("peer", addr), zap.Error(err))
		}
		go func(idx int, conn *net.UDPConn) {
			for {
				buf := make([]byte, 1024)
				oob := make([]byte, udp.TimestampLen())
				n, oobn, _, _, err := conn.ReadMsgUDPAddrPort(buf, oob)
				if err != nil {
					return
				}
				rxTime, err := udp.TimestampFromOOBData(oob[:oobn])
				if err != nil {
					rxTime = timebase.Now()
				}
				select {
				case msgs <- datagram{peer: idx, buf: buf[:n], rxTime: rxTime}:
				case <-done:
					return
				}
			}
		}(i, conn)
	}

	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	buf := make([]byte, ntp.PacketLen)
	completed := 0
	oneRead := false

	handle := func(d datagram) {
		mtrcs.pktsReceived.Inc()
		oneRead = true
		p := &peers[d.peer]
		if p.result.Responses >= target {
			return
		}
		var resp ntp.Packet
		err := ntp.DecodePacket(&resp, d.buf)
		if err != nil {
			mtrcs.pktsMalformed.Inc()
			log.Info("failed to decode packet",
				zap.Stringer("peer", p.addr), zap.Error(err))
			return
		}
		offset := ntp.ClockOffset(&resp, d.rxTime) + timemath.Seconds(cfg.TimeOffset)
		p.result.Offsets = append(p.result.Offsets, offset)
		p.result.Stratum = resp.Stratum
		p.result.Flags = resp.LVM
		p.result.Delay = ntp.SecondsFromTime32(resp.RootDelay)
		p.result.Dispersion = ntp.SecondsFromTime32(resp.RootDispersion)
		if cfg.Histo != nil && !p.waiting.IsZero() {
			_ = cfg.Histo.RecordValue(d.rxTime.Sub(p.waiting).Microseconds())
		}
		p.waiting = time.Time{}
		p.result.Responses++
		if p.result.Responses == target {
			completed++
		}
		log.Debug("received response",
			zap.Stringer("peer", p.addr),
			zap.Float64("offset", offset),
			zap.Object("packet", ntp.PacketMarshaler{Pkt: &resp}))
	}

	for completed != len(peers) {
		now := timebase.Now()
		if !now.Before(deadline) {
			break
		}

		// Send to the first peer that still lacks responses and has no
		// fresh request outstanding, at most one per pass. This caps
		// the burst rate and spreads retries.
		for i := range peers {
			p := &peers[i]
			if p.conn == nil || p.result.Responses >= target {
				continue
			}
			if !p.waiting.IsZero() && now.Sub(p.waiting) < resendAfter {
				continue
			}
			pkt := ntp.NewClientPacket(now)
			ntp.EncodePacket(&buf, &pkt)
			_, err := p.conn.Write(buf)
			if err != nil {
				log.Info("failed to send request",
					zap.Stringer("peer", p.addr), zap.Error(err))
			} else {
				mtrcs.reqsSent.Inc()
				log.Debug("sent request",
					zap.Stringer("peer", p.addr),
					zap.Bool("resend", !p.waiting.IsZero()))
			}
			p.waiting = now
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d := <-msgs:
			handle(d)
		drain:
			for {
				select {
				case d := <-msgs:
					handle(d)
				default:
					break drain
				}
			}
		case <-tick.C:
		}
	}

	if !oneRead {
		return nil, ErrNoResponse
	}

	results := make([]PeerResult, len(peers))
	for i := range peers {
		results[i] = peers[i].result
	}
	return results, nil
}
