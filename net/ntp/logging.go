package ntp

import (
	"go.uber.org/zap/zapcore"
)

type Time32Marshaler struct {
	T Time32
}

func (m Time32Marshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("seconds", m.T.Seconds)
	enc.AddUint16("fraction", m.T.Fraction)
	return nil
}

type Time64Marshaler struct {
	T Time64
}

func (m Time64Marshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("seconds", m.T.Seconds)
	enc.AddUint32("fraction", m.T.Fraction)
	return nil
}

type PacketMarshaler struct {
	Pkt *Packet
}

func (m PacketMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint8("li", m.Pkt.LeapIndicator())
	enc.AddUint8("vn", m.Pkt.Version())
	enc.AddUint8("mode", m.Pkt.Mode())
	enc.AddUint8("stratum", m.Pkt.Stratum)
	enc.AddInt8("poll", m.Pkt.Poll)
	enc.AddInt8("precision", m.Pkt.Precision)
	_ = enc.AddObject("rootDelay", Time32Marshaler{T: m.Pkt.RootDelay})
	_ = enc.AddObject("rootDispersion", Time32Marshaler{T: m.Pkt.RootDispersion})
	enc.AddUint32("referenceID", m.Pkt.ReferenceID)
	_ = enc.AddObject("referenceTime", Time64Marshaler{T: m.Pkt.ReferenceTime})
	_ = enc.AddObject("originTime", Time64Marshaler{T: m.Pkt.OriginTime})
	_ = enc.AddObject("receiveTime", Time64Marshaler{T: m.Pkt.ReceiveTime})
	_ = enc.AddObject("transmitTime", Time64Marshaler{T: m.Pkt.TransmitTime})
	return nil
}
