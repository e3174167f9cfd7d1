package ntp

import (
	"errors"
)

var (
	errUnexpectedResponse = errors.New("unexpected response structure")
)

// ValidateResponseMetadata rejects responses that no synchronized server
// would produce: an alarm leap indicator, an unexpected version or mode,
// a stratum outside the range valid for a queryable server, or a transmit
// timestamp preceding the receive timestamp.
func ValidateResponseMetadata(resp *Packet) error {
	if resp.LeapIndicator() == LeapIndicatorUnknown {
		return errUnexpectedResponse
	}
	if resp.Version() != 3 && resp.Version() != 4 {
		return errUnexpectedResponse
	}
	if resp.Mode() != ModeServer {
		return errUnexpectedResponse
	}
	if resp.Stratum == 0 || resp.Stratum > 15 {
		return errUnexpectedResponse
	}
	if resp.TransmitTime.Before(resp.ReceiveTime) {
		return errUnexpectedResponse
	}
	return nil
}
