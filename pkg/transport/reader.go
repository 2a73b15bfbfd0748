package transport

import (
	"bufio"
	"io"
	"log/slog"

	"github.com/trustlens/trustlens/pkg/models"
)

// FrameReader is the queue-mode receive side: it decodes frames from the
// pipe attached to the audit subprocess.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader creates a reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next event. io.EOF signals a clean end of stream.
func (fr *FrameReader) Next() (models.ProgressEvent, error) {
	return ReadFrame(fr.r)
}

// LineScanner is the fallback-mode receive side: it scans a stream for
// sentinel-prefixed event lines. Non-event lines (plain log output, the
// final result document) are handed to the passthrough callback.
type LineScanner struct {
	scanner     *bufio.Scanner
	passthrough func(line string)
}

// NewLineScanner creates a scanner over r. passthrough may be nil.
func NewLineScanner(r io.Reader, passthrough func(line string)) *LineScanner {
	sc := bufio.NewScanner(r)
	// Screenshot events are large; size the line buffer accordingly.
	sc.Buffer(make([]byte, 64*1024), MaxFrameSize)
	return &LineScanner{scanner: sc, passthrough: passthrough}
}

// Next returns the next event line, skipping passthrough lines.
// io.EOF signals end of stream.
func (ls *LineScanner) Next() (models.ProgressEvent, error) {
	for ls.scanner.Scan() {
		line := ls.scanner.Text()
		ev, isEvent, err := ParseEventLine(line)
		if err != nil {
			slog.Warn("Skipping malformed event line", "error", err)
			continue
		}
		if !isEvent {
			if ls.passthrough != nil {
				ls.passthrough(line)
			}
			continue
		}
		return ev, nil
	}
	if err := ls.scanner.Err(); err != nil {
		return models.ProgressEvent{}, err
	}
	return models.ProgressEvent{}, io.EOF
}
