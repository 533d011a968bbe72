package fetcher

import (
	"errors"
	"fmt"

	"github.com/voyagen/channelvault/internal/models"
)

var (
	// ErrMissingHeader means the first non-empty line is not #EXTM3U.
	ErrMissingHeader = errors.New("missing " + headerMarker + " header")
	// ErrTooManyChannels means the playlist yields more than models.MaxChannels channels.
	ErrTooManyChannels = fmt.Errorf("playlist contains more than %d channels, please split the file", models.MaxChannels)
)

// FormatError reports a playlist that is structurally unacceptable.
// It ends parsing; candidates already returned stay valid.
type FormatError struct {
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid playlist (line %d): %v", e.Line, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ReadError reports a failure of the underlying stream, including lines longer
// than the scanner allows and streams closed by the caller.
type ReadError struct {
	Line int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read playlist after line %d: %v", e.Line, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
