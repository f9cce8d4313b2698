package decoder

import (
	"encoding/binary"
	"fmt"
)

// FrameKind identifies which of the two ThermoBeacon advertisement layouts a
// payload matches.
type FrameKind int

const (
	// FrameShort18 is the 18-byte layout without the uptime field.
	FrameShort18 FrameKind = iota
	// FrameLong20 is the 20-byte layout with a trailing 4-byte uptime field.
	FrameLong20
)

const (
	frameShortLength = 18
	frameLongLength  = 20
)

// String returns a human-readable name for the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameShort18:
		return "short18"
	case FrameLong20:
		return "long20"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Reading is a decoded snapshot from a single advertisement frame.
// HasUptime is true only for readings decoded from a long frame.
type Reading struct {
	Address            string
	VoltageMillivolts  int
	TemperatureCelsius float64
	HumidityPercent    float64
	UptimeSeconds      uint32
	HasUptime          bool
}

// Classify determines whether a raw advertisement payload is a recognized
// ThermoBeacon frame and which layout it matches. It accepts only payloads of
// exactly 18 or 20 bytes whose first two bytes are the fixed 00 00 marker;
// everything else is rejected with ok=false. Rejection is the expected outcome
// for all non-ThermoBeacon BLE traffic and is not an error.
func Classify(data []byte) (kind FrameKind, ok bool) {
	if len(data) != frameShortLength && len(data) != frameLongLength {
		return 0, false
	}
	if data[0] != 0x00 || data[1] != 0x00 {
		return 0, false
	}
	if len(data) == frameLongLength {
		return FrameLong20, true
	}
	return FrameShort18, true
}

// Decode extracts the device address and physical quantities from a classified
// ThermoBeacon frame.
// Layout (little-endian, offsets from byte 0):
// - Bytes 0-1: fixed marker 00 00
// - Bytes 2-7: device address (as broadcast)
// - Bytes 8-9: battery voltage in mV (unsigned int16)
// - Bytes 10-11: temperature in 1/16 °C (signed int16)
// - Bytes 12-13: humidity in 1/16 %RH (unsigned int16)
// - Bytes 14-17: uptime in seconds (unsigned int32, long frames only)
// A frame shorter than its classified kind cannot occur after a successful
// Classify; it is reported as an error so the caller can surface the contract
// violation.
func Decode(kind FrameKind, data []byte) (*Reading, error) {
	frameLength := frameShortLength
	if kind == FrameLong20 {
		frameLength = frameLongLength
	}
	if len(data) < frameLength {
		return nil, fmt.Errorf("frame shorter than its classified %s layout: expected at least %d bytes, got %d", kind, frameLength, len(data))
	}

	// Extract device address (bytes 2-7, as broadcast)
	address := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		data[2], data[3], data[4], data[5], data[6], data[7])

	// Extract voltage (bytes 8-9, little endian unsigned int16)
	voltageMV := int(binary.LittleEndian.Uint16(data[8:10]))

	// Extract temperature (bytes 10-11, little endian signed int16, divide by 16)
	tempRaw := int16(binary.LittleEndian.Uint16(data[10:12]))
	temperature := float64(tempRaw) / 16.0

	// Extract humidity (bytes 12-13, little endian unsigned int16, divide by 16)
	humidityRaw := binary.LittleEndian.Uint16(data[12:14])
	humidity := float64(humidityRaw) / 16.0

	reading := &Reading{
		Address:            address,
		VoltageMillivolts:  voltageMV,
		TemperatureCelsius: temperature,
		HumidityPercent:    humidity,
	}

	if kind == FrameLong20 {
		reading.UptimeSeconds = binary.LittleEndian.Uint32(data[14:18])
		reading.HasUptime = true
	}

	return reading, nil
}
