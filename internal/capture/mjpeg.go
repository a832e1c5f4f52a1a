package capture

import (
	"bufio"
	"errors"
	"io"
)

// maxFrameSize bounds a single MJPEG frame; larger runs are discarded as corrupt.
const maxFrameSize = 16 << 20

// splitJPEGFrames reads a concatenated MJPEG stream and calls onFrame with
// each complete JPEG image (SOI 0xFFD8 through EOI 0xFFD9). Bytes outside a
// frame are skipped. Returns nil at EOF.
func splitJPEGFrames(r io.Reader, onFrame func([]byte)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		frame   []byte
		inFrame bool
		prev    byte
	)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !inFrame {
			if prev == 0xFF && b == 0xD8 {
				inFrame = true
				frame = append(frame[:0], 0xFF, 0xD8)
				prev = 0
				continue
			}
			prev = b
			continue
		}

		frame = append(frame, b)
		if prev == 0xFF && b == 0xD9 {
			out := make([]byte, len(frame))
			copy(out, frame)
			onFrame(out)
			inFrame = false
			prev = 0
			continue
		}
		if len(frame) > maxFrameSize {
			inFrame = false
			prev = 0
			continue
		}
		prev = b
	}
}
