package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/trustlens/trustlens/pkg/models"
)

// Frame wire format: 4-byte big-endian payload length, then the JSON
// payload. MaxFrameSize guards the reader against corrupt length words;
// screenshot events dominate the size budget.
const MaxFrameSize = 16 << 20

// WriteFrame encodes one event as a frame on w.
func WriteFrame(w io.Writer, ev models.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal frame: %v", models.ErrTransport, err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write frame header: %v", models.ErrTransport, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: write frame payload: %v", models.ErrTransport, err)
	}
	return nil
}

// ReadFrame decodes one event from r. Returns io.EOF when the stream
// ends cleanly at a frame boundary.
func ReadFrame(r io.Reader) (models.ProgressEvent, error) {
	var ev models.ProgressEvent
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return ev, io.EOF
		}
		return ev, fmt.Errorf("%w: read frame header: %v", models.ErrTransport, err)
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return ev, fmt.Errorf("%w: frame size %d exceeds limit", models.ErrTransport, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ev, fmt.Errorf("%w: read frame payload: %v", models.ErrTransport, err)
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("%w: decode frame: %v", models.ErrTransport, err)
	}
	return ev, nil
}
