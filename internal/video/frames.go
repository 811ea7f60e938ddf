package video

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"
)

// FrameDecoder turns raw video bytes into a sequence of still-image buffers.
// A malformed container yields an error, never an empty success.
type FrameDecoder interface {
	Decode(ctx context.Context, video []byte, maxFrames int) ([][]byte, error)
}

// pngSignature starts every PNG image in ffmpeg's image2pipe output.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// FFmpegDecoder extracts frames by piping the video through an ffmpeg
// subprocess as a PNG stream.
type FFmpegDecoder struct {
	// Path to the ffmpeg binary; "ffmpeg" resolves via PATH when empty.
	Path string
}

func (d FFmpegDecoder) Decode(ctx context.Context, video []byte, maxFrames int) ([][]byte, error) {
	bin := d.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	if maxFrames <= 0 {
		maxFrames = 64
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vframes", fmt.Sprint(maxFrames),
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(video)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, firstLine(stderr.String()))
	}

	frames := splitPNGStream(stdout.Bytes())
	if len(frames) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frames")
	}
	return frames, nil
}

// splitPNGStream cuts a concatenation of PNG images by walking each image's
// chunk list to its IEND chunk. The 8-byte signature can also occur inside
// compressed IDAT payloads, so scanning for it is not a safe cut point. A
// truncated trailing image is dropped.
func splitPNGStream(data []byte) [][]byte {
	var frames [][]byte
	for len(data) >= len(pngSignature) {
		if !bytes.HasPrefix(data, pngSignature) {
			// Resync past any junk before the next image.
			i := bytes.Index(data, pngSignature)
			if i < 0 {
				return frames
			}
			data = data[i:]
			continue
		}
		end, ok := pngEnd(data)
		if !ok {
			return frames
		}
		frames = append(frames, data[:end])
		data = data[end:]
	}
	return frames
}

// pngEnd returns the byte length of the PNG image at the start of data,
// walking chunk headers (4-byte length, 4-byte type, payload, 4-byte CRC)
// until IEND.
func pngEnd(data []byte) (int, bool) {
	off := len(pngSignature)
	for {
		if off+8 > len(data) {
			return 0, false
		}
		length := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		off += 8 + length + 4
		if off > len(data) {
			return 0, false
		}
		if typ == "IEND" {
			return off, true
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
