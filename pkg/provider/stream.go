package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
)

const (
	streamReadSize = 32 << 10
	// maxScanLine bounds the line buffers. Longer passthrough lines are
	// relayed but not inspected; a longer Gemini line ends the stream.
	maxScanLine = 1 << 20
)

// ErrStreamLineTooLong ends a converted stream whose upstream line never
// terminates within maxScanLine bytes.
var ErrStreamLineTooLong = errors.New("upstream stream line too long")

var doneLine = []byte("data: [DONE]\n\n")

// WriteSSEHeaders sets the event-stream headers plus meta and flushes them.
func WriteSSEHeaders(w http.ResponseWriter, meta map[string]string) error {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, v := range meta {
		h.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
	return flush(w)
}

// StreamOptions configures PipeStream.
type StreamOptions struct {
	// Google converts each Gemini line before it is written. Nil relays
	// bytes unchanged.
	Google *GoogleStreamConverter
	// OnChunk is called after every write to the client.
	OnChunk func()
}

// StreamResult summarizes a relayed stream.
type StreamResult struct {
	Chunks     int
	Bytes      int64
	Usage      TokenUsage
	UsageFound bool
}

// PipeStream relays body to w until EOF, a read error, or ctx is done.
// Body is closed exactly once. Headers must already be written, so a
// failure only ends the stream.
func PipeStream(ctx context.Context, w http.ResponseWriter, body io.ReadCloser, opts StreamOptions) (StreamResult, error) {
	p := &pipe{w: w, opts: opts}
	defer body.Close()

	buf := make([]byte, streamReadSize)
	for {
		if err := ctx.Err(); err != nil {
			return p.result, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if err := p.feed(buf[:n]); err != nil {
				return p.result, err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return p.result, p.finish()
			}
			return p.result, readErr
		}
	}
}

type pipe struct {
	w      http.ResponseWriter
	opts   StreamOptions
	line   []byte
	ended  bool
	result StreamResult
}

func (p *pipe) feed(chunk []byte) error {
	if p.opts.Google == nil {
		if err := p.write(chunk); err != nil {
			return err
		}
		p.scan(chunk)
		return nil
	}

	// Gemini lines are converted whole. Splitting on '\n' never cuts a
	// multi-byte rune.
	p.line = append(p.line, chunk...)
	for {
		i := bytes.IndexByte(p.line, '\n')
		if i < 0 {
			if len(p.line) > maxScanLine {
				p.line = nil
				p.end()
				return ErrStreamLineTooLong
			}
			return nil
		}
		line := string(p.line[:i])
		p.line = p.line[i+1:]
		if err := p.convert(line); err != nil {
			return err
		}
	}
}

func (p *pipe) finish() error {
	if p.opts.Google == nil {
		if len(p.line) > 0 {
			p.observe(string(p.line))
			p.line = nil
		}
		p.end()
		return nil
	}

	if len(p.line) > 0 {
		line := string(p.line)
		p.line = nil
		if err := p.convert(line); err != nil {
			return err
		}
	}
	if err := p.write(doneLine); err != nil {
		return err
	}
	p.end()
	return nil
}

func (p *pipe) convert(line string) error {
	p.observe(line)
	out := p.opts.Google.convertLine(line)
	if out == "" {
		return nil
	}
	return p.write([]byte(out))
}

// scan tracks complete lines of a passthrough stream for usage.
func (p *pipe) scan(chunk []byte) {
	p.line = append(p.line, chunk...)
	for {
		i := bytes.IndexByte(p.line, '\n')
		if i < 0 {
			break
		}
		p.observe(string(p.line[:i]))
		p.line = p.line[i+1:]
	}
	if len(p.line) > maxScanLine {
		p.line = nil
	}
}

func (p *pipe) observe(line string) {
	if u, ok := usageFromStreamLine(line); ok {
		p.result.Usage = u
		p.result.UsageFound = true
	}
}

func (p *pipe) write(b []byte) error {
	if p.ended {
		return nil
	}
	n, err := p.w.Write(b)
	p.result.Bytes += int64(n)
	if err != nil {
		p.ended = true
		return err
	}
	if err := flush(p.w); err != nil {
		p.ended = true
		return err
	}
	p.result.Chunks++
	if p.opts.OnChunk != nil {
		p.opts.OnChunk()
	}
	return nil
}

func (p *pipe) end() {
	p.ended = true
}

func flush(w http.ResponseWriter) error {
	err := http.NewResponseController(w).Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
