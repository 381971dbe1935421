package ingest

import (
	"bytes"
	"context"
	"testing"
)

func jpegFrame(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	frame = append(frame, 0xFF, 0xD9)
	return frame
}

func TestReadJPEGFrames(t *testing.T) {
	t.Run("splits concatenated frames", func(t *testing.T) {
		var stream []byte
		want := [][]byte{
			jpegFrame(0x01, 0x02, 0x03),
			jpegFrame(0x04),
			jpegFrame(0x05, 0x06),
		}
		for _, f := range want {
			stream = append(stream, f...)
		}

		var got [][]byte
		err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(data []byte) error {
			got = append(got, data)
			return nil
		})
		if err != nil {
			t.Fatalf("readJPEGFrames: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d frames, want %d", len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Errorf("frame %d = % x, want % x", i, got[i], want[i])
			}
		}
	})

	t.Run("skips garbage between frames", func(t *testing.T) {
		frame := jpegFrame(0xAA, 0xBB)
		stream := append([]byte{0x00, 0x13, 0x37}, frame...)
		stream = append(stream, 0xDE, 0xAD)
		stream = append(stream, frame...)

		count := 0
		err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(data []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("readJPEGFrames: %v", err)
		}
		if count != 2 {
			t.Errorf("got %d frames, want 2", count)
		}
	})

	t.Run("truncated final frame ends stream cleanly", func(t *testing.T) {
		stream := jpegFrame(0x01)
		stream = append(stream, 0xFF, 0xD8, 0x02) // no end marker

		count := 0
		err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(data []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("readJPEGFrames: %v", err)
		}
		if count != 1 {
			t.Errorf("got %d frames, want 1", count)
		}
	})
}
