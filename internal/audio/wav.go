package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavBitsPerSample = 16

// WAVInfo is the format half of a decoded RIFF/WAVE file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// EncodeWAV writes raw little-endian PCM16 bytes with a canonical WAV header.
func EncodeWAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("invalid channel count %d", channels)
	}

	byteRate := sampleRate * channels * (wavBitsPerSample / 8)
	blockAlign := channels * (wavBitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], wavBitsPerSample)
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// DecodeWAV parses a PCM16 WAV stream into its format info and payload.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (WAVInfo, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, nil, errors.New("not a RIFF/WAVE stream")
	}

	var (
		info    WAVInfo
		payload []byte
		haveFmt bool
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVInfo{}, nil, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkLen := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return WAVInfo{}, nil, fmt.Errorf("fmt chunk too short: %d", chunkLen)
			}
			fmtChunk := make([]byte, chunkLen)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtChunk[0:2]); format != 1 {
				return WAVInfo{}, nil, fmt.Errorf("unsupported WAV format code %d", format)
			}
			if bits := binary.LittleEndian.Uint16(fmtChunk[14:16]); bits != wavBitsPerSample {
				return WAVInfo{}, nil, fmt.Errorf("unsupported bits per sample %d", bits)
			}
			info.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			haveFmt = true
		case "data":
			payload = make([]byte, chunkLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("read data chunk: %w", err)
			}
			info.DataBytes = len(payload)
		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunkLen)); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}

	if !haveFmt {
		return WAVInfo{}, nil, errors.New("missing fmt chunk")
	}
	if payload == nil {
		return WAVInfo{}, nil, errors.New("missing data chunk")
	}
	return info, payload, nil
}
