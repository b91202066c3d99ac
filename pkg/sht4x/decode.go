package sht4x

import (
	"fmt"

	"github.com/ericogr/plura-monitor/pkg/mathx"
)

// Decode converts a 6-byte response [T_msb, T_lsb, T_crc, RH_msb, RH_lsb,
// RH_crc]. Humidity is clamped to [0, 100].
func Decode(b []byte) (Measurement, error) {
	if len(b) != responseLen {
		return Measurement{}, fmt.Errorf("sht4x: response is %d bytes, want %d", len(b), responseLen)
	}
	if crc8(b[0:2]) != b[2] {
		return Measurement{}, fmt.Errorf("%w: temperature", ErrCRC)
	}
	if crc8(b[3:5]) != b[5] {
		return Measurement{}, fmt.Errorf("%w: humidity", ErrCRC)
	}
	rawT := uint16(b[0])<<8 | uint16(b[1])
	rawRH := uint16(b[3])<<8 | uint16(b[4])
	return Measurement{
		TemperatureC:   Temperature(rawT),
		HumidityRH:     Humidity(rawRH),
		RawTemperature: rawT,
		RawHumidity:    rawRH,
	}, nil
}

// Temperature converts a raw temperature word to degrees Celsius.
func Temperature(raw uint16) float64 {
	return -45 + 175*float64(raw)/65535
}

// Humidity converts a raw humidity word to %RH.
func Humidity(raw uint16) float64 {
	return mathx.Clamp(-6+125*float64(raw)/65535, 0, 100)
}

// crc8 is the Sensirion checksum: polynomial 0x31, init 0xFF.
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
