// Package codec decodes compressed audio bytes into PCM buffers.
// Supported formats: WAV, AIFF, MP3 and Ogg Vorbis.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/wavedeck/wavedeck/internal/pcm"
)

// Decode sniffs the format of raw file bytes and decodes them to PCM.
// The path is only consulted for its extension; content magic wins when
// the extension is missing or unknown.
func Decode(path string, data []byte) (*pcm.Buffer, error) {
	switch sniff(path, data) {
	case formatWAV:
		return decodeWAV(data)
	case formatAIFF:
		return decodeAIFF(data)
	case formatMP3:
		return decodeMP3(data)
	case formatOGG:
		return decodeOGG(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
	}
}

type format int

const (
	formatUnknown format = iota
	formatWAV
	formatAIFF
	formatMP3
	formatOGG
)

func sniff(path string, data []byte) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return formatWAV
	case ".aif", ".aiff":
		return formatAIFF
	case ".mp3":
		return formatMP3
	case ".ogg", ".oga":
		return formatOGG
	}
	if len(data) < 12 {
		return formatUnknown
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return formatWAV
	case bytes.HasPrefix(data, []byte("FORM")):
		return formatAIFF
	case bytes.HasPrefix(data, []byte("OggS")):
		return formatOGG
	case bytes.HasPrefix(data, []byte("ID3")), data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	}
	return formatUnknown
}

func decodeWAV(data []byte) (*pcm.Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrInvalidData
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	return fromIntBuffer(buf)
}

func decodeAIFF(data []byte) (*pcm.Buffer, error) {
	d := aiff.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrInvalidData
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("aiff decode: %w", err)
	}
	return fromIntBuffer(buf)
}

// fromIntBuffer rescales go-audio integer samples of any source bit depth
// to 16-bit.
func fromIntBuffer(buf *goaudio.IntBuffer) (*pcm.Buffer, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, ErrInvalidData
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit PCM is unsigned.
			samples[i] = int16((v - 128) << 8)
		case depth > 16:
			samples[i] = int16(v >> (depth - 16))
		default:
			samples[i] = int16(v)
		}
	}
	return &pcm.Buffer{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

func decodeMP3(data []byte) (*pcm.Buffer, error) {
	d, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	samples := make([]int16, len(raw)/pcm.BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*pcm.BytesPerSample:]))
	}
	return &pcm.Buffer{
		Samples:    samples,
		Channels:   2,
		SampleRate: d.SampleRate(),
	}, nil
}

func decodeOGG(data []byte) (*pcm.Buffer, error) {
	floats, fmtInfo, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vorbis decode: %w", err)
	}
	samples := make([]int16, len(floats))
	for i, f := range floats {
		samples[i] = float32ToInt16(f)
	}
	return &pcm.Buffer{
		Samples:    samples,
		Channels:   fmtInfo.Channels,
		SampleRate: fmtInfo.SampleRate,
	}, nil
}

func float32ToInt16(f float32) int16 {
	switch {
	case f >= 1.0:
		return 32767
	case f <= -1.0:
		return -32768
	}
	return int16(f * 32767)
}
