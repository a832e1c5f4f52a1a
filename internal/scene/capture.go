// Package scene holds the values that flow through the capture → describe →
// weave pipeline and the error taxonomy shared by every stage.
package scene

import (
	"fmt"
	"time"
)

// MIMETypeJPEG is the encoding every capture source produces.
const MIMETypeJPEG = "image/jpeg"

// Capture is one encoded still image sampled from a camera stream.
type Capture struct {
	// Data is the encoded image (JPEG for every built-in source).
	Data []byte

	// MIMEType is the encoding tag of Data, e.g. "image/jpeg".
	MIMEType string

	// Width and Height are the pixel dimensions after normalisation.
	Width  int
	Height int

	// TakenAt is when the frame was sampled.
	TakenAt time.Time
}

// Empty reports whether the capture carries no image data.
func (c *Capture) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// String summarises the capture for logs without dumping the payload.
func (c *Capture) String() string {
	if c == nil {
		return "<no capture>"
	}
	return fmt.Sprintf("%s %dx%d (%d bytes)", c.MIMEType, c.Width, c.Height, len(c.Data))
}
