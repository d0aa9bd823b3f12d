package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danmuck/extpipe/internal/protocol"
)

// Control channel keywords. Comparisons go through Is unless noted.
const (
	KeywordReady     = "Server:READY"
	KeywordAck       = "ack"
	KeywordExit      = "exit"
	KeywordExitQuiet = "exit -"
	KeywordPackage   = "package"

	// ReplyAck and ReplySendData open a host->client transfer.
	ReplyAck      = "ACK"
	ReplySendData = "Send Data"
	// ReplyReceived confirms a transfer and is compared exactly.
	ReplyReceived    = "Received package"
	ReplyInvalidSize = "error: invalid size"
	ReplyIncomplete  = "error: incomplete data"

	// TrustedSender is the only sender id accepted on inbound packages.
	TrustedSender = "AS:SERVER"

	headerToken = "Package"
	stopToken   = "STOP:"
)

// LineKind classifies one control line read by the listener.
type LineKind int

const (
	LineMessage LineKind = iota
	LineExit
	LineExitQuiet
	LinePackage
)

func (k LineKind) String() string {
	switch k {
	case LineExit:
		return "exit"
	case LineExitQuiet:
		return "exit_quiet"
	case LinePackage:
		return "package"
	default:
		return "message"
	}
}

// Is reports whether line equals keyword ignoring case.
func Is(line, keyword string) bool {
	return strings.EqualFold(line, keyword)
}

// Classify maps a control line onto its listener action.
func Classify(line string) LineKind {
	switch {
	case Is(line, KeywordExit):
		return LineExit
	case Is(line, KeywordExitQuiet):
		return LineExitQuiet
	case hasPrefixFold(line, KeywordPackage):
		return LinePackage
	default:
		return LineMessage
	}
}

// PackageHeader is the parsed form of `package <sender>,<packageId>,<size>`.
type PackageHeader struct {
	SenderID  string
	PackageID string
	Size      int
}

// ParsePackageHeader parses one package header line. Size problems are
// reported with protocol.ErrInvalidSize and the remaining fields filled in so
// the caller can still reply to the peer.
func ParsePackageHeader(line string) (PackageHeader, error) {
	if !hasPrefixFold(line, KeywordPackage) {
		return PackageHeader{}, fmt.Errorf("%w: missing %q token", protocol.ErrMalformedHeader, KeywordPackage)
	}
	_, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	if !ok || rest == "" {
		return PackageHeader{}, fmt.Errorf("%w: missing fields", protocol.ErrMalformedHeader)
	}
	parts := strings.Split(rest, ",")
	if len(parts) != 3 {
		return PackageHeader{}, fmt.Errorf("%w: want 3 fields, got %d", protocol.ErrMalformedHeader, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return PackageHeader{}, fmt.Errorf("%w: empty field %d", protocol.ErrMalformedHeader, i)
		}
	}
	hdr := PackageHeader{SenderID: parts[0], PackageID: parts[1]}
	size, err := strconv.Atoi(parts[2])
	if err != nil || size <= 0 {
		return hdr, fmt.Errorf("%w: %q", protocol.ErrInvalidSize, parts[2])
	}
	hdr.Size = size
	return hdr, nil
}

// FormatPackageHeader renders the header a client sends before a package.
func FormatPackageHeader(clientID, packageID string, size int) string {
	return fmt.Sprintf("%s %s,%s,%d", headerToken, clientID, packageID, size)
}

// FormatStop renders the final line sent on teardown.
func FormatStop(clientID string, exitCode int) string {
	return fmt.Sprintf("%s %s %d", stopToken, clientID, exitCode)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// LineReader reads newline-delimited control lines and, between lines, raw
// payload bytes from the same buffered stream.
type LineReader struct {
	r       *bufio.Reader
	maxLine int
}

func NewLineReader(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &LineReader{r: bufio.NewReader(r), maxLine: maxLine}
}

// ReadLine returns the next line without its terminator. A final line that
// ends at EOF without a newline is still returned. A line longer than the
// limit is discarded as it streams in and reported as ErrLineTooLarge once
// its terminator has been consumed.
func (l *LineReader) ReadLine() (string, error) {
	var line []byte
	tooLarge := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !tooLarge {
			if len(line)+len(chunk) > l.maxLine {
				tooLarge, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil && tooLarge:
			return "", protocol.ErrLineTooLarge
		case err == nil, errors.Is(err, io.EOF) && len(line) > 0 && !tooLarge:
			return strings.TrimRight(string(line), "\r\n"), nil
		default:
			return "", err
		}
	}
}

// Read drains buffered bytes first, then the underlying stream.
func (l *LineReader) Read(p []byte) (int, error) {
	return l.r.Read(p)
}

// LineWriter writes control lines and raw payloads, flushing after each.
type LineWriter struct {
	w *bufio.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (l *LineWriter) WriteLine(line string) error {
	if _, err := l.w.WriteString(line); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// WriteRaw sends payload bytes as-is, without a line terminator.
func (l *LineWriter) WriteRaw(b []byte) error {
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.Flush()
}
