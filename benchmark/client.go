package benchmark

import (
	"net"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"

	"example.com/ntp-check/base/zaplog"
	"example.com/ntp-check/core/timebase"
	"example.com/ntp-check/net/ntp"
	"example.com/ntp-check/net/udp"
)

// RunBenchmark fires numRequests client requests at remoteAddr one after
// the other and reports the round-trip delay distribution.
func RunBenchmark(remoteAddr *net.UDPAddr, numRequests int) {
	log := zaplog.Logger()
	hg := hdrhistogram.New(1, 50_000_000, 5)

	conn, err := net.DialUDP("udp", nil, remoteAddr)
	if err != nil {
		log.Fatal("failed to dial UDP connection", zap.Error(err))
	}
	defer conn.Close()
	_ = udp.EnableRxTimestamps(conn)

	buf := make([]byte, ntp.PacketLen)
	oob := make([]byte, udp.TimestampLen())

	for i := 0; i != numRequests; i++ {
		cTxTime := timebase.Now()
		ntpreq := ntp.NewClientPacket(cTxTime)
		ntp.EncodePacket(&buf, &ntpreq)

		_, err = conn.Write(buf)
		if err != nil {
			log.Fatal("failed to write packet", zap.Error(err))
		}

		buf = buf[:cap(buf)]
		oob = oob[:cap(oob)]
		n, oobn, _, _, err := conn.ReadMsgUDPAddrPort(buf, oob)
		if err != nil {
			log.Fatal("failed to read packet", zap.Error(err))
		}
		cRxTime, err := udp.TimestampFromOOBData(oob[:oobn])
		if err != nil {
			cRxTime = timebase.Now()
		}
		buf = buf[:n]

		var ntpresp ntp.Packet
		err = ntp.DecodePacket(&ntpresp, buf)
		if err != nil {
			log.Fatal("failed to decode packet payload", zap.Error(err))
		}
		if ntpresp.OriginTime != ntpreq.TransmitTime {
			log.Fatal("unrelated packet received")
		}
		err = ntp.ValidateResponseMetadata(&ntpresp)
		if err != nil {
			log.Fatal("unexpected packet received", zap.Error(err))
		}

		peerRx := ntp.SecondsFromTime64(ntpresp.ReceiveTime)
		peerTx := ntp.SecondsFromTime64(ntpresp.TransmitTime)
		clientTx := ntp.SecondsFromTime(cTxTime)
		clientRx := ntp.SecondsFromTime(cRxTime)
		roundTripDelay := (clientRx - clientTx) - (peerTx - peerRx)

		err = hg.RecordValue(int64(roundTripDelay * float64(time.Second/time.Microsecond)))
		if err != nil {
			log.Fatal("failed to record histogram value", zap.Error(err))
		}
	}

	log.Info("benchmark done",
		zap.Stringer("remote", remoteAddr),
		zap.Int("requests", numRequests),
		zap.Int64("p50_us", hg.ValueAtQuantile(50)),
		zap.Int64("p95_us", hg.ValueAtQuantile(95)),
		zap.Int64("p99_us", hg.ValueAtQuantile(99)),
		zap.Int64("max_us", hg.Max()))
}
