package provider

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// decodeWAVToFloat32 extracts 16-bit signed little-endian PCM samples from a
// RIFF/WAV container and scales them to [-1, 1] float32 mono. Multi-channel
// input is downmixed by averaging.
func decodeWAVToFloat32(wav []byte) ([]float32, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		channels      = 1
		bitsPerSample = 16
		data          []byte
	)

	// Walk the chunk list; fmt describes the sample layout, data carries PCM.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(wav) {
			chunkSize = len(wav) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("malformed fmt chunk")
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d, need PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			bitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
		case "data":
			data = wav[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if data == nil {
		return nil, errors.New("missing data chunk")
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, need 16", bitsPerSample)
	}
	if channels < 1 {
		channels = 1
	}

	frameCount := len(data) / (2 * channels)
	samples := make([]float32, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			raw := int16(binary.LittleEndian.Uint16(data[(i*channels+c)*2:]))
			sum += float32(raw) / 32768.0
		}
		samples[i] = sum / float32(channels)
	}
	return samples, nil
}

// SilenceWAV produces a 16 kHz mono WAV of the given duration filled with
// silence. Diagnostic endpoints use it to exercise the inference path without
// shipping audio fixtures.
func SilenceWAV(seconds float64) []byte {
	const sampleRate = 16000
	frames := int(seconds * sampleRate)
	if frames < 1 {
		frames = 1
	}
	return encodeWAV(make([]byte, frames*2), sampleRate, 1)
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
