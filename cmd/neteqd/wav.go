package main

import (
	"encoding/binary"
	"fmt"
	"os"
)

// wavWriter streams decoded linear PCM to a 16-bit mono WAV file, patching
// the RIFF/data sizes on Close. Grounded on the teacher's G.711-to-WAV
// recorder (internal/media/recorder.go) but writes the engine's own
// already-linear output directly, with no re-encode step.
type wavWriter struct {
	file       *os.File
	sampleRate int
	dataSize   uint32
}

const wavHeaderSize = 44

func newWAVWriter(path string, sampleRate int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating wav file: %w", err)
	}
	if _, err := f.Write(make([]byte, wavHeaderSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("reserving wav header: %w", err)
	}
	return &wavWriter{file: f, sampleRate: sampleRate}, nil
}

// WriteSamples appends linear PCM samples to the file.
func (w *wavWriter) WriteSamples(pcm []int16) error {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	w.dataSize += uint32(len(buf))
	return nil
}

// Close finalizes the WAV header with the accumulated data size and closes
// the file.
func (w *wavWriter) Close() error {
	defer w.file.Close()

	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := w.sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+w.dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], numChannels)
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:], w.dataSize)

	if _, err := w.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	return nil
}
