package fetcher

import (
	"bufio"
	"io"
	"strings"

	"github.com/voyagen/channelvault/internal/models"
)

const (
	headerMarker = "#EXTM3U"
	extinfPrefix = "#EXTINF:"

	// Some playlists carry very long #EXTINF lines.
	maxLineSize = 1024 * 1024
)

var streamProtocols = []string{"http://", "https://", "rtmp://", "rtmps://", "rtsp://"}

// Parser reads an extended M3U playlist one channel at a time. It is single
// pass: once Next returns false the parser is spent and a fresh reader is
// needed to parse again.
//
//	p := fetcher.NewParser(r)
//	for p.Next() {
//		c := p.Candidate()
//		...
//	}
//	if err := p.Err(); err != nil { ... }
type Parser struct {
	scanner *bufio.Scanner
	line    int

	headerRead bool
	done       bool
	err        error

	pending *models.ChannelCandidate
	current models.ChannelCandidate
	emitted int
}

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: newLineScanner(r)}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return scanner
}

// Next advances to the next channel. It returns false at the end of the
// playlist or on the first error, which Err then reports.
func (p *Parser) Next() bool {
	if p.done {
		return false
	}
	if !p.headerRead {
		if !p.readHeader() {
			return false
		}
	}

	for p.scanner.Scan() {
		p.line++
		line := strings.TrimSpace(p.scanner.Text())

		switch {
		case line == "":
		case strings.HasPrefix(line, extinfPrefix):
			// A previous #EXTINF without URL is dropped.
			c := ParseEXTINF(line)
			p.pending = &c
		case strings.HasPrefix(line, "#"):
		default:
			if p.pending == nil {
				continue
			}
			c := *p.pending
			p.pending = nil
			if !hasStreamProtocol(line) {
				continue
			}
			if p.emitted >= models.MaxChannels {
				p.fail(&FormatError{Line: p.line, Err: ErrTooManyChannels})
				return false
			}
			p.emitted++
			c.StreamURL = line
			c.Line = p.line
			p.current = c
			return true
		}
	}

	if err := p.scanner.Err(); err != nil {
		p.fail(&ReadError{Line: p.line, Err: err})
		return false
	}
	p.done = true
	return false
}

// readHeader consumes lines up to the first non-empty one, which must be the
// #EXTM3U marker.
func (p *Parser) readHeader() bool {
	p.headerRead = true
	for p.scanner.Scan() {
		p.line++
		line := p.scanner.Text()
		if p.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line != headerMarker {
			p.fail(&FormatError{Line: p.line, Err: ErrMissingHeader})
			return false
		}
		return true
	}
	if err := p.scanner.Err(); err != nil {
		p.fail(&ReadError{Line: p.line, Err: err})
		return false
	}
	p.fail(&FormatError{Line: p.line, Err: ErrMissingHeader})
	return false
}

func (p *Parser) fail(err error) {
	p.err = err
	p.done = true
	p.pending = nil
}

// Candidate returns the channel read by the last successful Next.
func (p *Parser) Candidate() models.ChannelCandidate {
	return p.current
}

// Err returns the error that stopped parsing, or nil at a clean end.
// It is a *FormatError or a *ReadError.
func (p *Parser) Err() error {
	return p.err
}

// Emitted returns how many candidates have been returned so far.
func (p *Parser) Emitted() int {
	return p.emitted
}

func hasStreamProtocol(url string) bool {
	for _, proto := range streamProtocols {
		if strings.HasPrefix(url, proto) {
			return true
		}
	}
	return false
}
