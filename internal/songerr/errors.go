package songerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidTitle         Kind = "invalid_title"
	KindUnsupportedContainer Kind = "unsupported_container"
	KindTagParse             Kind = "tag_parse"
	KindLinkNotFound         Kind = "link_not_found"
	KindTimeout              Kind = "timeout"
	KindTransfer             Kind = "transfer"
)

// Wire codes carried in error responses between nodes and clients.
const (
	CodeWrongTitle           = "ERR_SONG_WRONG_TITLE"
	CodeUnsupportedContainer = "ERR_SONG_UNSUPPORTED_CONTAINER"
	CodeTagParse             = "ERR_SONG_TAG_PARSE"
	CodeNotFoundLink         = "ERR_SONG_NOT_FOUND_LINK"
	CodeTimeout              = "ERR_SONG_TIMEOUT"
	CodeTransfer             = "ERR_SONG_TRANSFER"
)

var codes = map[Kind]string{
	KindInvalidTitle:         CodeWrongTitle,
	KindUnsupportedContainer: CodeUnsupportedContainer,
	KindTagParse:             CodeTagParse,
	KindLinkNotFound:         CodeNotFoundLink,
	KindTimeout:              CodeTimeout,
	KindTransfer:             CodeTransfer,
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidTitle         = &Error{Kind: KindInvalidTitle, Message: "invalid song title"}
	ErrUnsupportedContainer = &Error{Kind: KindUnsupportedContainer, Message: "unsupported container"}
	ErrTagParse             = &Error{Kind: KindTagParse, Message: "tag parse error"}
	ErrLinkNotFound         = &Error{Kind: KindLinkNotFound, Message: "link not found"}
	ErrTimeout              = &Error{Kind: KindTimeout, Message: "timeout"}
	ErrTransfer             = &Error{Kind: KindTransfer, Message: "transfer failed"}
)

// Error is a classified songmesh failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind returns the classification as a string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Is matches by kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Code: codes[kind], Message: message, Err: err}
}

// InvalidTitle reports a title that is not of the form "Artist - Title".
func InvalidTitle(title string) *Error {
	return New(KindInvalidTitle, fmt.Sprintf("Wrong song title %q. It must be like \"Artist - Title\"", title), nil)
}

// UnsupportedContainer reports input that is not an MP3 stream.
func UnsupportedContainer(detail string) *Error {
	return New(KindUnsupportedContainer, "unsupported audio container: "+detail, nil)
}

// TagParse wraps a malformed tag header error.
func TagParse(err error) *Error {
	return New(KindTagParse, "malformed tag data", err)
}

// LinkNotFound reports that no node holds the requested file.
func LinkNotFound(title string) *Error {
	return New(KindLinkNotFound, fmt.Sprintf("Link for song %q is not found", title), nil)
}

// Timeout reports an exceeded budget in the given phase.
func Timeout(phase string, err error) *Error {
	return New(KindTimeout, phase+" timed out", err)
}

// Transfer wraps a network or storage failure.
func Transfer(message string, err error) *Error {
	return New(KindTransfer, message, err)
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the wire code of err. Unclassified errors map to the
// transfer code.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return codes[e.Kind]
	}
	return CodeTransfer
}

// FromCode rebuilds an error from a wire code and message. Unknown codes
// become transfer errors.
func FromCode(code, message string) *Error {
	for kind, c := range codes {
		if c == code {
			return &Error{Kind: kind, Code: code, Message: message}
		}
	}
	return &Error{Kind: KindTransfer, Code: CodeTransfer, Message: message}
}

// NormalizeTimeout maps deadline and network timeouts onto KindTimeout.
// Other errors, nil included, are returned unchanged.
func NormalizeTimeout(err error, phase string) error {
	if err == nil || KindOf(err) == KindTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Timeout(phase, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(phase, err)
	}
	return err
}

// IsUserFacing reports whether err is caused by bad input rather than by
// the network or storage.
func IsUserFacing(err error) bool {
	switch KindOf(err) {
	case KindInvalidTitle, KindUnsupportedContainer, KindTagParse:
		return true
	}
	return false
}
