package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/facewatch/internal/engine"
	"github.com/your-org/facewatch/internal/models"
)

// FFmpegSource extracts JPEG frames from a video URL (RTSP, HTTP, or a local
// file) using an FFmpeg subprocess and hands them to the engine one at a
// time. When the stream ends, Next reports engine.ErrEndOfStream.
type FFmpegSource struct {
	url   string
	fps   int
	width int

	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd

	frames  chan models.Frame
	started bool
	runErr  error
}

func NewFFmpegSource(url string, fps, width int) *FFmpegSource {
	return &FFmpegSource{
		url:    url,
		fps:    fps,
		width:  width,
		frames: make(chan models.Frame, 4),
	}
}

// Next blocks until a frame is available. The first call starts FFmpeg.
func (f *FFmpegSource) Next(ctx context.Context) (models.Frame, error) {
	f.mu.Lock()
	if !f.started {
		f.started = true
		runCtx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel
		go f.run(runCtx)
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	case frame, ok := <-f.frames:
		if !ok {
			if f.runErr != nil {
				return models.Frame{}, f.runErr
			}
			return models.Frame{}, engine.ErrEndOfStream
		}
		return frame, nil
	}
}

// Stop terminates the FFmpeg process and ends the stream.
func (f *FFmpegSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

func (f *FFmpegSource) run(ctx context.Context) {
	defer close(f.frames)

	err := f.extract(ctx, func(frameData []byte) error {
		frame := models.Frame{
			Data:      frameData,
			Width:     f.width,
			Timestamp: time.Now(),
		}
		select {
		case f.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		f.runErr = fmt.Errorf("ffmpeg source: %w", err)
		slog.Error("frame extraction failed", "url", f.url, "error", err)
	}
}

// extract starts FFmpeg and feeds each decoded JPEG frame to the callback.
// Blocks until the context is cancelled or the stream ends.
func (f *FFmpegSource) extract(ctx context.Context, callback func([]byte) error) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	// Protocol-specific timeout/reconnect args
	if strings.HasPrefix(f.url, "rtsp://") || strings.HasPrefix(f.url, "rtsps://") {
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000", // 5s RTSP socket timeout (microseconds)
			"-timeout", "5000000", // 5s overall timeout (microseconds)
		)
	} else if strings.HasPrefix(f.url, "http://") || strings.HasPrefix(f.url, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000", // 10s (microseconds)
		)
	}

	args = append(args,
		"-i", f.url,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", f.fps, f.width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	f.mu.Lock()
	f.cmd = cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := readJPEGFrames(ctx, stdout, callback); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}

	return cmd.Wait()
}

// readJPEGFrames reads a stream of concatenated JPEG images.
// Tolerates initial EOF while ffmpeg is still connecting (up to 5 seconds).
func readJPEGFrames(ctx context.Context, r io.Reader, callback func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024) // 512KB buffer
	framesRead := 0
	const maxStartupRetries = 50 // 50 * 100ms = 5s max wait for first frame
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Find JPEG start marker: FF D8
		err := findJPEGStart(reader)
		if err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil // stream ended normally after producing frames
				}
				return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		// Read until JPEG end marker: FF D9
		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil // stream ended mid-frame; treat as normal end
			}
			return err
		}

		if len(frameData) > 0 {
			framesRead++
			if err := callback(frameData); err != nil {
				return err
			}
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	// Start with JPEG header
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
	}
}
