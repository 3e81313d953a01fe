package sensor

import (
	"fmt"
)

// Frame is [header, high, low, checksum], distance in millimeters big-endian.
const (
	FrameHeader byte = 0xff
	FrameLength      = 4
)

type Reason uint8

const (
	ReasonShort Reason = iota + 1
	ReasonSentinel
	ReasonChecksum
	ReasonRange
	ReasonIO
)

func (r Reason) String() string {
	switch r {
	case ReasonShort:
		return "short"
	case ReasonSentinel:
		return "sentinel"
	case ReasonChecksum:
		return "checksum"
	case ReasonRange:
		return "range"
	case ReasonIO:
		return "io"
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// FrameError explains why sample is not valid.
type FrameError struct {
	Reason Reason
	Frame  []byte
	Raw    uint16
	Cause  error
}

func (e *FrameError) Error() string {
	switch e.Reason {
	case ReasonRange:
		return fmt.Sprintf("sensor frame invalid reason=%s distance=%dmm", e.Reason, e.Raw)
	case ReasonIO:
		return fmt.Sprintf("sensor frame invalid reason=%s err=%v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("sensor frame invalid reason=%s frame=%x", e.Reason, e.Frame)
}

func Checksum(high, low byte) byte { return FrameHeader + high + low }

// DecodeFrame validates header and checksum, returns distance in millimeters.
func DecodeFrame(b []byte) (uint16, error) {
	if len(b) < FrameLength {
		return 0, &FrameError{Reason: ReasonShort, Frame: b}
	}
	b = b[:FrameLength]
	if b[0] != FrameHeader {
		return 0, &FrameError{Reason: ReasonSentinel, Frame: append([]byte(nil), b...)}
	}
	if Checksum(b[1], b[2]) != b[3] {
		return 0, &FrameError{Reason: ReasonChecksum, Frame: append([]byte(nil), b...)}
	}
	return uint16(b[1])<<8 | uint16(b[2]), nil
}

func EncodeFrame(mm uint16) [FrameLength]byte {
	high, low := byte(mm>>8), byte(mm)
	return [FrameLength]byte{FrameHeader, high, low, Checksum(high, low)}
}
