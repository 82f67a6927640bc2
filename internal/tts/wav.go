package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// EncodeSilentWAV returns a 16-bit mono PCM WAV of silence.
func EncodeSilentWAV(duration time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	samples := int(math.Round(duration.Seconds() * float64(sampleRate)))
	if samples < 0 {
		samples = 0
	}
	dataSize := samples * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

// WAVDuration reads the playing time of a RIFF/WAVE buffer from its fmt and
// data chunks.
func WAVDuration(data []byte) (time.Duration, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, errors.New("wav: not a RIFF/WAVE file")
	}
	var byteRate uint32
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, errors.New("wav: truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, errors.New("wav: data chunk before fmt chunk")
			}
			if body+size > len(data) {
				size = len(data) - body
			}
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
		}
		off = body + size + size%2
	}
	return 0, errors.New("wav: no data chunk")
}

// ReadWAVDuration is WAVDuration for a file.
func ReadWAVDuration(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	d, err := WAVDuration(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
