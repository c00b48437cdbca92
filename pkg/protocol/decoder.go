// Package protocol implements the QBT stream state machine: frame
// synchronization, header parsing, body ingestion and checksum validation.
package protocol

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wxmesh/byteblaster/internal/checksum"
	"github.com/wxmesh/byteblaster/internal/xorbuf"
)

type state int

const (
	stateResync state = iota
	stateStartFrame
	stateFrameType
	stateServerList
	stateBlockHeader
	stateBlockBody
	stateValidate
)

func (s state) String() string {
	switch s {
	case stateResync:
		return "RESYNC"
	case stateStartFrame:
		return "START_FRAME"
	case stateFrameType:
		return "FRAME_TYPE"
	case stateServerList:
		return "SERVER_LIST"
	case stateBlockHeader:
		return "BLOCK_HEADER"
	case stateBlockBody:
		return "BLOCK_BODY"
	case stateValidate:
		return "VALIDATE"
	default:
		return "UNKNOWN"
	}
}

const headerLength = 80

const headerPattern = `^/PF(?P<PF>[A-Za-z0-9\-._]+)\s*/PN\s*(?P<PN>[0-9]+)\s*/PT\s*(?P<PT>[0-9]+)\s*/CS\s*(?P<CS>[0-9]+)\s*/FD(?P<FD>[0-9/: ]+[AP]M)\s*(?:/DL(?P<DL>[0-9]+)\s*)?` + "\r\n$"

var headerRegex = regexp.MustCompile(headerPattern)

const dateLayout = "01/02/2006 03:04:05 PM"

var fillFilename = "FILLFILE.TXT"

var satServersTerminator = []byte(satServersClose + "\x00")

// FrameHandler receives every successfully decoded frame. Panics raised
// inside it are recovered and logged; they never propagate into the
// decoder.
type FrameHandler func(Frame)

// ErrorHandler is notified of structural protocol errors that reset the
// decoder to RESYNC. It is the supervisor's hook for watchdog accounting.
type ErrorHandler func(error)

// Decoder is the QBT stream state machine. It is not safe for concurrent
// use; a single goroutine must own Feed.
type Decoder struct {
	buf   xorbuf.Buffer
	state state

	pendingSegment *Segment
	pendingLength  int
	pendingBody    []byte

	source  string
	handler FrameHandler
	onError ErrorHandler
	log     *logrus.Entry
}

// NewDecoder constructs a Decoder in the initial RESYNC state. source
// identifies the remote peer for diagnostics and is attached to every
// emitted Segment.
func NewDecoder(source string, handler FrameHandler) *Decoder {
	return &Decoder{
		state:   stateResync,
		source:  source,
		handler: handler,
		log:     logrus.WithField("component", "protocol").WithField("source", source),
	}
}

// OnError registers a callback invoked whenever a structural error resets
// the decoder to RESYNC.
func (d *Decoder) OnError(fn ErrorHandler) {
	d.onError = fn
}

// State reports the decoder's current state, for diagnostics and tests.
func (d *Decoder) State() string {
	return d.state.String()
}

// Feed appends newly received bytes (still XOR-obfuscated) and drives the
// state machine until it can no longer make progress with the data on
// hand.
func (d *Decoder) Feed(data []byte) {
	d.buf.Append(data)
	for {
		progressed, frame, err := d.step()
		if err != nil {
			d.log.WithError(err).Warn("structural protocol error, resyncing")
			d.state = stateResync
			if d.onError != nil {
				d.onError(err)
			}
			continue
		}
		if frame != nil {
			d.emit(frame)
		}
		if !progressed {
			return
		}
	}
}

func (d *Decoder) step() (progressed bool, frame Frame, err error) {
	switch d.state {
	case stateResync:
		return d.resync(), nil, nil
	case stateStartFrame:
		return d.startFrame(), nil, nil
	case stateFrameType:
		return d.frameType(), nil, nil
	case stateServerList:
		ok, f := d.serverList()
		return ok, f, nil
	case stateBlockHeader:
		ok, err := d.blockHeader()
		return ok, nil, err
	case stateBlockBody:
		return d.blockBody(), nil, nil
	case stateValidate:
		f, err := d.validate()
		return true, f, err
	default:
		panic(fmt.Sprintf("protocol: unknown decoder state %v", d.state))
	}
}

func (d *Decoder) emit(f Frame) {
	if d.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("frame handler panic: %v", r)
		}
	}()
	d.handler(f)
}

// resync scans for six consecutive 0x00 bytes, the post-XOR sync marker.
func (d *Decoder) resync() bool {
	avail := d.buf.Available()
	if avail < 6 {
		return false
	}
	data := d.buf.Peek(avail, 0)
	idx := indexOfRun(data, 0x00, 6)
	if idx < 0 {
		keep := 5
		if avail < keep {
			keep = avail
		}
		if skip := avail - keep; skip > 0 {
			d.buf.Skip(skip)
			d.buf.Compact()
		}
		return false
	}
	d.buf.Skip(idx + 6)
	d.buf.Compact()
	d.state = stateStartFrame
	return true
}

// startFrame skips leading 0x00 padding bytes until a non-null byte
// appears.
func (d *Decoder) startFrame() bool {
	progressed := false
	for {
		b := d.buf.Peek(1, 0)
		if b == nil {
			return progressed
		}
		if b[0] != 0x00 {
			d.state = stateFrameType
			d.buf.Compact()
			return true
		}
		d.buf.Skip(1)
		progressed = true
	}
}

func (d *Decoder) frameType() bool {
	if d.buf.Available() < 10 {
		return false
	}
	peek := d.buf.Peek(10, 0)
	switch {
	case bytes.HasPrefix(peek, []byte("/PF")):
		d.state = stateBlockHeader
	case bytes.HasPrefix(peek, []byte("/Se")):
		d.state = stateServerList
	default:
		d.log.Warnf("unrecognized frame type at %q, dropping one byte", peek)
		d.buf.Skip(1)
		d.buf.Compact()
		d.state = stateResync
	}
	return true
}

func (d *Decoder) serverList() (bool, Frame) {
	avail := d.buf.Available()
	data := d.buf.Peek(avail, 0)

	if idx := bytes.IndexByte(data, 0x00); idx >= 0 {
		raw := string(data[:idx])
		d.buf.Skip(idx + 1)
		d.buf.Compact()
		d.state = stateStartFrame
		return true, d.buildServerListFrame(raw)
	}
	if idx := bytes.Index(data, satServersTerminator); idx >= 0 {
		end := idx + len(satServersTerminator)
		raw := string(data[:end])
		d.buf.Skip(end)
		d.buf.Compact()
		d.state = stateStartFrame
		return true, d.buildServerListFrame(raw)
	}
	return false, nil
}

func (d *Decoder) buildServerListFrame(raw string) Frame {
	list, err := ParseServerListContent(raw)
	if err != nil {
		d.log.WithError(err).Warn("unparseable server list frame")
		return nil
	}
	list.ReceivedAt = time.Now().UTC()
	return ServerListFrame{ServerList: list, Raw: raw}
}

func (d *Decoder) blockHeader() (bool, error) {
	if d.buf.Available() < headerLength {
		return false, nil
	}
	raw := d.buf.Read(headerLength)
	d.buf.Compact()
	header := string(raw)

	match := headerRegex.FindStringSubmatch(header)
	if match == nil {
		return true, fmt.Errorf("%w: %q", ErrHeaderMalformed, header)
	}
	fields := namedGroups(headerRegex, match)

	pn, err := strconv.Atoi(fields["PN"])
	if err != nil {
		return true, fmt.Errorf("%w: bad /PN: %v", ErrHeaderMalformed, err)
	}
	pt, err := strconv.Atoi(fields["PT"])
	if err != nil {
		return true, fmt.Errorf("%w: bad /PT: %v", ErrHeaderMalformed, err)
	}
	cs, err := strconv.ParseUint(fields["CS"], 10, 32)
	if err != nil {
		return true, fmt.Errorf("%w: bad /CS: %v", ErrHeaderMalformed, err)
	}
	fd := strings.Join(strings.Fields(fields["FD"]), " ")
	ts, err := time.Parse(dateLayout, fd)
	if err != nil {
		return true, fmt.Errorf("%w: bad /FD: %v", ErrHeaderMalformed, err)
	}

	version := V1
	length := 1024
	if dl, ok := fields["DL"]; ok && dl != "" {
		n, err := strconv.Atoi(dl)
		if err != nil {
			return true, fmt.Errorf("%w: bad /DL: %v", ErrHeaderMalformed, err)
		}
		if n < 1 || n > 1024 {
			return true, fmt.Errorf("%w: /DL=%d", ErrBodyLengthOutOfRange, n)
		}
		version = V2
		length = n
	}

	d.pendingSegment = &Segment{
		Filename:    fields["PF"],
		BlockNumber: pn,
		TotalBlocks: pt,
		Checksum:    uint32(cs),
		Length:      length,
		Version:     version,
		Timestamp:   ts.UTC(),
		ReceivedAt:  time.Now().UTC(),
		Header:      header,
		Source:      d.source,
	}
	d.pendingLength = length
	d.state = stateBlockBody
	return true, nil
}

func (d *Decoder) blockBody() bool {
	if d.buf.Available() < d.pendingLength {
		return false
	}
	body := d.buf.Read(d.pendingLength)
	d.buf.Compact()
	d.pendingBody = body
	d.state = stateValidate
	return true
}

func (d *Decoder) validate() (Frame, error) {
	seg := d.pendingSegment
	body := d.pendingBody
	d.pendingSegment = nil
	d.pendingBody = nil
	d.pendingLength = 0
	d.state = stateStartFrame

	if seg == nil {
		return nil, nil
	}

	if !seg.Valid() {
		d.log.Warnf("dropping segment with invalid block numbering: %d/%d", seg.BlockNumber, seg.TotalBlocks)
		return nil, nil
	}
	if strings.EqualFold(seg.Filename, fillFilename) {
		return nil, nil
	}

	content, ok := validateChecksum(*seg, body)
	upper := strings.ToUpper(seg.Filename)
	if strings.HasSuffix(upper, ".TXT") || strings.HasSuffix(upper, ".WMO") {
		content = trimTrailingBytes(content)
	}
	seg.Content = content
	if !ok {
		d.log.Warnf("checksum mismatch for %s block %d/%d", seg.Filename, seg.BlockNumber, seg.TotalBlocks)
	}

	return DataBlockFrame{Segment: *seg, Body: body, ChecksumOK: ok}, nil
}

// validateChecksum implements the §4.1.1 checksum policy, returning the
// (possibly decompressed) content and whether it validated.
func validateChecksum(seg Segment, body []byte) ([]byte, bool) {
	expected := uint16(seg.Checksum & 0xFFFF)

	if seg.Version == V1 || !checksum.LooksCompressed(body) {
		return body, checksum.Verify(body, expected)
	}

	inflated, err := checksum.Inflate(body)
	if err != nil {
		return body, checksum.Verify(body, expected)
	}
	return inflated, checksum.Verify(inflated, expected)
}

var trimCutset = map[byte]bool{
	0x00: true,
	' ':  true,
	'\t': true,
	'\r': true,
	'\n': true,
}

func trimTrailingBytes(content []byte) []byte {
	end := len(content)
	for end > 0 && trimCutset[content[end-1]] {
		end--
	}
	return content[:end]
}

// indexOfRun returns the index of the first run of n consecutive b bytes in
// data, or -1 if none exists.
func indexOfRun(data []byte, b byte, n int) int {
	run := 0
	for i, v := range data {
		if v == b {
			run++
			if run == n {
				return i - n + 1
			}
		} else {
			run = 0
		}
	}
	return -1
}

// namedGroups maps a regexp's named capture groups to their matched text
// for a successful FindStringSubmatch result.
func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}
