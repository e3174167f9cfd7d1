package sampler_test

import (
	"context"
	"errors"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"testing"

	"go.uber.org/zap"

	"example.com/ntp-check/core/check"
	"example.com/ntp-check/core/sampler"
	"example.com/ntp-check/core/timebase"
	"example.com/ntp-check/driver/clock"
	"example.com/ntp-check/net/ntp"
)

var clockOnce sync.Once

func registerTestClock() {
	clockOnce.Do(func() {
		timebase.RegisterClock(&clock.SystemClock{Log: zap.NewNop()})
	})
}

// startServer runs a loopback NTP server answering every request via
// respond, or swallowing requests when respond is nil. It returns the
// bound port.
func startServer(t *testing.T, respond func(req *ntp.Packet) []byte) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	go func() {
		buf := make([]byte, 1024)
		for {
			n, addr, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			if respond == nil {
				continue
			}
			var req ntp.Packet
			if err := ntp.DecodePacket(&req, buf[:n]); err != nil {
				continue
			}
			_, _ = conn.WriteToUDPAddrPort(respond(&req), addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// respondWithOffset produces well-formed stratum 2 responses whose
// timestamps place the server clock ahead of the local clock by offset.
func respondWithOffset(offset time.Duration) func(req *ntp.Packet) []byte {
	return func(req *ntp.Packet) []byte {
		now := time.Now().Add(offset)
		var resp ntp.Packet
		resp.SetLeapIndicator(ntp.LeapIndicatorNoWarning)
		resp.SetVersion(4)
		resp.SetMode(ntp.ModeServer)
		resp.Stratum = 2
		resp.RootDelay = ntp.Time32{Seconds: 0, Fraction: 655}
		resp.RootDispersion = ntp.Time32{Seconds: 0, Fraction: 0}
		resp.ReferenceID = 0x7f000001
		resp.OriginTime = req.TransmitTime
		resp.ReceiveTime = ntp.Time64FromTime(now)
		resp.TransmitTime = ntp.Time64FromTime(now)
		var buf []byte
		ntp.EncodePacket(&buf, &resp)
		return buf
	}
}

func TestSampleCollectsTargetResponses(t *testing.T) {
	registerTestClock()
	port := startServer(t, respondWithOffset(250*time.Millisecond))

	results, err := sampler.Sample(context.Background(), zap.NewNop(), sampler.Config{
		Host:    "127.0.0.1",
		Port:    strconv.Itoa(port),
		Timeout: 8 * time.Second,
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Responses != sampler.DefaultSampleTarget {
		t.Errorf("responses = %d, want %d", r.Responses, sampler.DefaultSampleTarget)
	}
	if len(r.Offsets) != sampler.DefaultSampleTarget {
		t.Fatalf("offset samples = %d, want %d", len(r.Offsets), sampler.DefaultSampleTarget)
	}
	if r.Stratum != 2 {
		t.Errorf("stratum = %d, want 2", r.Stratum)
	}
	if r.LeapIndicator() != ntp.LeapIndicatorNoWarning {
		t.Errorf("leap indicator = %d, want %d", r.LeapIndicator(), ntp.LeapIndicatorNoWarning)
	}
	if math.Abs(r.Delay-0.01) > 0.001 {
		t.Errorf("delay = %v, want about 0.01", r.Delay)
	}
	for _, o := range r.Offsets {
		if math.Abs(o-0.25) > 0.05 {
			t.Errorf("offset sample = %v, want about 0.25", o)
		}
	}
}

func TestSampleEndToEndClassification(t *testing.T) {
	registerTestClock()
	port := startServer(t, respondWithOffset(250*time.Millisecond))

	log := zap.NewNop()
	results, err := sampler.Sample(context.Background(), log, sampler.Config{
		Host:    "127.0.0.1",
		Port:    strconv.Itoa(port),
		Timeout: 8 * time.Second,
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	best := check.BestServer(log, results)
	if best != 0 {
		t.Fatalf("BestServer = %d, want 0", best)
	}
	offset := check.AverageOffset(results[best])
	if math.Abs(offset-0.25) > 0.05 {
		t.Errorf("aggregated offset = %v, want about 0.25", offset)
	}

	warning, _ := check.ParseRange("0.2")
	critical, _ := check.ParseRange("1.0")
	if got := check.EvaluateOffset(offset, warning, critical); got != check.StatusWarning {
		t.Errorf("status = %v, want %v", got, check.StatusWarning)
	}
}

func TestSampleTimeOffsetCorrection(t *testing.T) {
	registerTestClock()
	port := startServer(t, respondWithOffset(0))

	results, err := sampler.Sample(context.Background(), zap.NewNop(), sampler.Config{
		Host:       "127.0.0.1",
		Port:       strconv.Itoa(port),
		Timeout:    8 * time.Second,
		TimeOffset: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	for _, o := range results[0].Offsets {
		if math.Abs(o-3) > 0.05 {
			t.Errorf("offset sample = %v, want about 3 (correction applied at capture)", o)
		}
	}
}

func TestSampleSilentPeer(t *testing.T) {
	registerTestClock()
	port := startServer(t, nil)

	start := time.Now()
	_, err := sampler.Sample(context.Background(), zap.NewNop(), sampler.Config{
		Host:    "127.0.0.1",
		Port:    strconv.Itoa(port),
		Timeout: 4 * time.Second,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, sampler.ErrNoResponse) {
		t.Errorf("Sample error = %v, want ErrNoResponse", err)
	}
	// The session budget is half the timeout.
	if elapsed < 1500*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("Sample returned after %v, want about 2s", elapsed)
	}
}

func TestSampleMalformedResponses(t *testing.T) {
	registerTestClock()
	port := startServer(t, func(req *ntp.Packet) []byte {
		return make([]byte, 10)
	})

	results, err := sampler.Sample(context.Background(), zap.NewNop(), sampler.Config{
		Host:    "127.0.0.1",
		Port:    strconv.Itoa(port),
		Timeout: 2 * time.Second,
	})
	// Datagrams did arrive, so this is not a no-response failure; the
	// malformed reads simply yield no samples.
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if results[0].Responses != 0 {
		t.Errorf("responses = %d, want 0", results[0].Responses)
	}
	if got := check.BestServer(zap.NewNop(), results); got != -1 {
		t.Errorf("BestServer = %d, want -1", got)
	}
}

func TestSampleResolutionError(t *testing.T) {
	registerTestClock()

	_, err := sampler.Sample(context.Background(), zap.NewNop(), sampler.Config{
		Host:    "host.invalid",
		Timeout: 2 * time.Second,
	})
	if !errors.Is(err, sampler.ErrResolution) {
		t.Errorf("Sample error = %v, want ErrResolution", err)
	}
}

func TestSampleContextCancellation(t *testing.T) {
	registerTestClock()
	port := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sampler.Sample(ctx, zap.NewNop(), sampler.Config{
		Host:    "127.0.0.1",
		Port:    strconv.Itoa(port),
		Timeout: 20 * time.Second,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Sample error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Sample returned after %v, want prompt cancellation", elapsed)
	}
}
