package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

type clip struct {
	format wavFormat
	pcm    []byte
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// parseWAV extracts the format and PCM payload of a 16-bit PCM WAV file.
func parseWAV(data []byte) (*clip, error) {
	r := bytes.NewReader(data)

	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errNotWAV
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	var c clip
	haveFmt := false
	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("wav: missing data chunk")
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("wav: read chunk size: %w", err)
		}

		switch string(id[:]) {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if f.AudioFormat != 1 || f.BitsPerSample != 16 {
				return nil, fmt.Errorf("wav: unsupported encoding format=%d bits=%d (want 16-bit PCM)", f.AudioFormat, f.BitsPerSample)
			}
			if _, err := r.Seek(int64(size-16), io.SeekCurrent); err != nil {
				return nil, err
			}
			c.format = wavFormat{SampleRate: int(f.SampleRate), Channels: int(f.Channels), BitDepth: int(f.BitsPerSample)}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			n := int(size)
			if n > r.Len() {
				n = r.Len()
			}
			c.pcm = make([]byte, n)
			if _, err := io.ReadFull(r, c.pcm); err != nil {
				return nil, fmt.Errorf("wav: read data: %w", err)
			}
			return &c, nil
		default:
			skip := int64(size) + int64(size%2)
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

// tone synthesizes consecutive 16-bit sine beeps in the given format.
func tone(format wavFormat, freqs []float64, each float64) *clip {
	samples := int(float64(format.SampleRate) * each)
	buf := make([]byte, 0, len(freqs)*samples*format.Channels*2)
	for _, f := range freqs {
		for i := 0; i < samples; i++ {
			v := int16(math.Sin(2*math.Pi*f*float64(i)/float64(format.SampleRate)) * 0.6 * math.MaxInt16)
			for ch := 0; ch < format.Channels; ch++ {
				buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
			}
		}
	}
	return &clip{format: format, pcm: buf}
}
