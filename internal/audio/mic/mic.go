// Package mic captures microphone audio through PortAudio and exposes
// it as an audio.Device. Recordings are mono 16 kHz 16-bit WAV.
package mic

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"

	"github.com/wisemama/wisemama/internal/audio"
)

const (
	sampleRate      = 16000
	channels        = 1
	bitsPerSample   = 16
	framesPerBuffer = 1024

	// Chunks buffered between the PortAudio callback and the reader.
	// The callback must never block, so overflow drops chunks.
	chunkBuffer = 64
)

// Device opens the system default input device. Wrap it with
// audio.Exclusive before sharing across recorders.
type Device struct{}

// New returns a PortAudio-backed microphone device.
func New() *Device {
	return &Device{}
}

// Open starts capturing from the default input device. The first chunk
// on the session is a streaming WAV header; the rest is raw PCM.
func (d *Device) Open(ctx context.Context) (audio.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio host: %w", err)
	}

	input, err := portaudio.DefaultInputDevice()
	if err != nil || input == nil {
		portaudio.Terminate()
		if err == nil {
			err = audio.ErrNoDevice
		}
		return nil, fmt.Errorf("no input device available: %w", err)
	}
	if input.MaxInputChannels < channels {
		portaudio.Terminate()
		return nil, audio.ErrNoDevice
	}

	s := &session{ch: make(chan audio.Chunk, chunkBuffer)}

	params := portaudio.HighLatencyParameters(input, nil)
	params.SampleRate = sampleRate
	params.Input.Channels = channels
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, s.onSamples)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	s.ch <- audio.Chunk{Data: streamingWAVHeader()}
	return s, nil
}

type session struct {
	stream *portaudio.Stream
	ch     chan audio.Chunk
	closed bool
}

func (s *session) Chunks() <-chan audio.Chunk {
	return s.ch
}

func (s *session) MimeType() string {
	return "audio/wav"
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := s.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close input stream: %w", err)
	}
	close(s.ch)
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to terminate audio host: %w", err)
	}
	return firstErr
}

// onSamples runs on the PortAudio callback thread. It encodes the
// buffer as little-endian PCM and drops the chunk if the reader is
// behind; blocking here would glitch the capture.
func (s *session) onSamples(in []int16) {
	data := make([]byte, len(in)*2)
	var sum float64
	for i, sample := range in {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
		f := float64(sample) / 32768.0
		sum += f * f
	}
	level := 0.0
	if len(in) > 0 {
		level = math.Sqrt(sum / float64(len(in)))
		if level > 1 {
			level = 1
		}
	}

	select {
	case s.ch <- audio.Chunk{Data: data, Level: level}:
	default:
	}
}

// streamingWAVHeader returns a 44-byte PCM WAV header with maxed size
// fields. The final size is unknown while streaming; players treat the
// sentinel as "read to end of stream".
func streamingWAVHeader() []byte {
	header := make([]byte, 44)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 0xFFFFFFFF)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], sampleRate*channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], 0xFFFFFFFF)
	return header
}
