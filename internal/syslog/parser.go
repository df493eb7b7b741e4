package syslog

import (
	"bytes"
	"strconv"

	"github.com/ProjectMeniscus/portal/internal/cursor"
)

// maxSDScratch bounds the in-progress token buffer used while scanning SD
// element/param names and values, per the spec's recommended 8 KiB scratch
// ceiling.
const maxSDScratch = 8 * 1024

// Parser is a resumable, byte-driven RFC 5424 state machine. It consumes
// arbitrary chunks from Feed, including chunks that split a token mid-field,
// and drives a Handler as it recognizes each frame's structure.
//
// A Parser is bound to exactly one connection for its lifetime; it is not
// safe for concurrent use.
type Parser struct {
	handler Handler
	state   ParserState

	cur cursor.ByteCursor

	scratch       []byte
	pendingEscape bool

	messageLength uint32
	priority      uint32
	version       uint32
	fieldIdx      int

	head        MessageHead
	headEmitted bool
	sdDecided   bool
	nilSD       bool
}

// New creates a Parser that drives handler as frames are recognized.
func New(handler Handler) *Parser {
	return &Parser{handler: handler}
}

// State returns the parser's current lexical position, for tests and
// diagnostics.
func (p *Parser) State() ParserState {
	return p.state
}

// Reset discards all in-progress frame state and returns the parser to
// ExpectingOctetCount, as if newly constructed. Buffered-but-unprocessed
// bytes are not retained; this is for recovering a connection after a
// caller has decided not to close it on parse error (the default policy,
// per the spec, is to close on error instead).
func (p *Parser) Reset() {
	*p = Parser{handler: p.handler}
}

func (p *Parser) resetScratch() {
	if cap(p.scratch) > maxSDScratch {
		p.scratch = nil
	} else {
		p.scratch = p.scratch[:0]
	}
}

// resetForNextFrame clears all per-frame state while preserving the byte
// cursor, so any bytes left over in the current Feed buffer after
// on_msg_complete are processed as the start of the next frame without
// discontinuity.
func (p *Parser) resetForNextFrame() {
	cur := p.cur
	*p = Parser{handler: p.handler, state: ExpectingOctetCount}
	p.cur = cur
}

// Feed processes the next chunk of bytes from the connection. It may span
// any number of complete or partial frames, and may end mid-token; the
// parser resumes exactly where it left off on the next call.
func (p *Parser) Feed(data []byte) error {
	p.cur.Reset(data)
	for !p.cur.Done() {
		var err error
		switch {
		case p.state == ExpectingOctetCount || p.state == InOctetCount:
			err = p.stepOctetCount()
		case p.state == ExpectingPriority || p.state == InPriority:
			err = p.stepPriority()
		case p.state == ExpectingVersion || p.state == InVersion:
			err = p.stepVersion()
		case isHeaderFieldState(p.state):
			err = p.stepHeaderField()
		case p.state == ExpectingSDOrBody:
			err = p.stepSDOrBody()
		case p.state == InSDElementName:
			err = p.stepSDElementName()
		case p.state == InSDParamName:
			err = p.stepSDParamName()
		case p.state == ExpectingSDParamValue:
			err = p.stepExpectSDParamValue()
		case p.state == InSDParamValue:
			err = p.stepSDParamValue()
		case p.state == stateAfterSDValue:
			err = p.stepAfterSDValue()
		case p.state == InBody:
			err = p.stepBody()
		default:
			p.state = ExpectingOctetCount
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func isHeaderFieldState(s ParserState) bool {
	for _, f := range headerFields {
		if s == f.expect || s == f.in {
			return true
		}
	}
	return false
}

// scanUntilAny scans the unconsumed chunk for the first byte in delims,
// returning the accumulated token (scratch plus this chunk's contribution)
// and the delimiter matched. The delimiter itself is not consumed; callers
// decide how to handle it. When no delimiter is found, the chunk's bytes
// are appended to scratch and found is false.
func (p *Parser) scanUntilAny(delims []byte, maxLen int) (tok []byte, matched byte, found bool, err error) {
	unconsumed := p.cur.Bytes()
	idx := bytes.IndexAny(unconsumed, string(delims))
	if idx < 0 {
		if len(p.scratch)+len(unconsumed) > maxLen {
			return nil, 0, false, &ParseError{Kind: ErrInternalBufferOverflow}
		}
		p.scratch = append(p.scratch, unconsumed...)
		p.cur.AdvanceFrame(len(unconsumed))
		return nil, 0, false, nil
	}

	if len(p.scratch)+idx > maxLen {
		return nil, 0, false, &ParseError{Kind: ErrInternalBufferOverflow}
	}
	if len(p.scratch) == 0 {
		tok = unconsumed[:idx]
	} else {
		tok = append(p.scratch, unconsumed[:idx]...)
	}
	matched = unconsumed[idx]
	p.cur.AdvanceFrame(idx)
	p.resetScratch()
	return tok, matched, true, nil
}

// stepOctetCount consumes the RFC 6587 decimal length prefix and the single
// space that follows it. These bytes precede the message's own octet
// budget, so they are not frame-accounted.
func (p *Parser) stepOctetCount() error {
	buf := p.cur.Bytes()
	for i, b := range buf {
		if b == ' ' {
			p.cur.Advance(i + 1)
			if len(p.scratch) == 0 {
				return &ParseError{Kind: ErrMalformedOctetCount}
			}
			n, err := strconv.ParseUint(string(p.scratch), 10, 32)
			if err != nil {
				return &ParseError{Kind: ErrMalformedOctetCount}
			}
			p.messageLength = uint32(n)
			p.resetScratch()
			p.cur.BeginFrame(p.messageLength)
			p.state = ExpectingPriority
			return nil
		}
		if b < '0' || b > '9' {
			return &ParseError{Kind: ErrMalformedOctetCount}
		}
		if len(p.scratch) >= 9 {
			return &ParseError{Kind: ErrOctetCountOverflow}
		}
		p.scratch = append(p.scratch, b)
		p.state = InOctetCount
	}
	p.cur.Advance(len(buf))
	return nil
}

func (p *Parser) stepPriority() error {
	if p.state == ExpectingPriority {
		buf := p.cur.Bytes()
		if len(buf) == 0 {
			return nil
		}
		if buf[0] != '<' {
			return &ParseError{Kind: ErrInvalidPriority}
		}
		p.cur.AdvanceFrame(1)
		p.state = InPriority
	}

	buf := p.cur.Bytes()
	for i, b := range buf {
		if b == '>' {
			p.cur.AdvanceFrame(i + 1)
			if len(p.scratch) == 0 {
				return &ParseError{Kind: ErrInvalidPriority}
			}
			n, err := strconv.ParseUint(string(p.scratch), 10, 16)
			if err != nil || n > 191 {
				return &ParseError{Kind: ErrInvalidPriority}
			}
			p.priority = uint32(n)
			p.resetScratch()
			p.state = ExpectingVersion
			return nil
		}
		if b < '0' || b > '9' {
			return &ParseError{Kind: ErrInvalidPriority}
		}
		if len(p.scratch) >= 3 {
			return &ParseError{Kind: ErrInvalidPriority}
		}
		p.scratch = append(p.scratch, b)
	}
	p.cur.AdvanceFrame(len(buf))
	return nil
}

func (p *Parser) stepVersion() error {
	buf := p.cur.Bytes()
	for i, b := range buf {
		if b == ' ' {
			p.cur.AdvanceFrame(i + 1)
			if len(p.scratch) == 0 {
				return &ParseError{Kind: ErrInvalidVersion}
			}
			n, err := strconv.ParseUint(string(p.scratch), 10, 16)
			if err != nil || n < 1 || n > 999 {
				return &ParseError{Kind: ErrInvalidVersion}
			}
			p.version = uint32(n)
			p.resetScratch()
			p.fieldIdx = 0
			p.state = headerFields[0].expect
			return nil
		}
		if b < '0' || b > '9' {
			return &ParseError{Kind: ErrInvalidVersion}
		}
		if len(p.scratch) >= 3 {
			return &ParseError{Kind: ErrInvalidVersion}
		}
		p.scratch = append(p.scratch, b)
		p.state = InVersion
	}
	p.cur.AdvanceFrame(len(buf))
	return nil
}

func (p *Parser) stepHeaderField() error {
	f := headerFields[p.fieldIdx]
	buf := p.cur.Bytes()
	for i, b := range buf {
		if b == ' ' {
			p.cur.AdvanceFrame(i + 1)
			tok := string(p.scratch)
			p.resetScratch()
			if len(tok) > f.maxLen {
				return fieldTooLong(f.name)
			}
			f.assignTo(&p.head, tok)
			p.fieldIdx++
			if p.fieldIdx < len(headerFields) {
				p.state = headerFields[p.fieldIdx].expect
				return nil
			}
			// All scalar header fields are known; the head is emitted now,
			// before structured data (if any) is parsed, matching the
			// assembler's "store head, then mutate its SD map" contract.
			p.state = ExpectingSDOrBody
			return p.ensureHeadEmitted()
		}
		if len(p.scratch) >= f.maxLen {
			return fieldTooLong(f.name)
		}
		p.scratch = append(p.scratch, b)
		p.state = f.in
	}
	p.cur.AdvanceFrame(len(buf))
	return nil
}

// stepSDOrBody decides between a nil SD block, one or more SD elements, and
// (after at least one element has closed) the end of the structured-data
// section. The byte that introduces the body is part of the body. A space
// after a nil SD marker is held until the next byte: if that byte is '[',
// SD elements follow; otherwise the held space is emitted as the body's
// first byte.
func (p *Parser) stepSDOrBody() error {
	if len(p.scratch) > 0 && (p.cur.Remaining() == 0 || (p.cur.Len() > 0 && p.cur.Bytes()[0] != '[')) {
		if err := p.handler.OnMsgPart(p.scratch); err != nil {
			return handlerErr(err)
		}
		p.resetScratch()
	}
	if p.cur.Remaining() == 0 {
		return p.completeMessage()
	}

	buf := p.cur.Bytes()
	if len(buf) == 0 {
		return nil
	}

	switch b := buf[0]; {
	case !p.sdDecided && b == '-':
		p.cur.AdvanceFrame(1)
		p.sdDecided = true
		if p.cur.Remaining() == 0 {
			return p.completeMessage()
		}
		p.nilSD = true
		return nil
	case p.nilSD && b == ' ':
		p.cur.AdvanceFrame(1)
		p.scratch = append(p.scratch, b)
		p.nilSD = false
		return p.stepSDOrBody()
	case b == '[':
		p.cur.AdvanceFrame(1)
		p.resetScratch()
		p.sdDecided = true
		p.state = InSDElementName
		return nil
	default:
		p.state = InBody
		return nil
	}
}

func (p *Parser) stepSDElementName() error {
	tok, matched, found, err := p.scanUntilAny([]byte{']', ' '}, maxSDScratch)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	name := string(tok)
	if err := p.handler.OnSDElement(name); err != nil {
		return handlerErr(err)
	}

	if matched == ']' {
		p.cur.AdvanceFrame(1)
		return p.afterSDElementClosed()
	}
	p.cur.AdvanceFrame(1)
	p.state = InSDParamName
	return nil
}

func (p *Parser) stepSDParamName() error {
	tok, _, found, err := p.scanUntilAny([]byte{'='}, maxSDScratch)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	fieldName := string(tok)
	if err := p.handler.OnSDField(fieldName); err != nil {
		return handlerErr(err)
	}
	p.cur.AdvanceFrame(1) // consume '='
	p.state = ExpectingSDParamValue
	return nil
}

func (p *Parser) stepExpectSDParamValue() error {
	buf := p.cur.Bytes()
	if len(buf) == 0 {
		return nil
	}
	if buf[0] != '"' {
		return &ParseError{Kind: ErrUnterminatedSDValue}
	}
	p.cur.AdvanceFrame(1)
	p.state = InSDParamValue
	return nil
}

// stepSDParamValue scans a quoted SD value, translating the \", \\, and \]
// escape sequences; any other backslash is retained literally.
func (p *Parser) stepSDParamValue() error {
	buf := p.cur.Bytes()
	i := 0
	for i < len(buf) {
		b := buf[i]
		if p.pendingEscape {
			switch b {
			case '"', '\\', ']':
				p.scratch = append(p.scratch, b)
			default:
				p.scratch = append(p.scratch, '\\', b)
			}
			p.pendingEscape = false
			i++
			continue
		}
		switch b {
		case '\\':
			p.pendingEscape = true
			i++
		case '"':
			p.cur.AdvanceFrame(i + 1)
			value := string(p.scratch)
			p.resetScratch()
			if err := p.handler.OnSDValue(value); err != nil {
				return handlerErr(err)
			}
			return p.stepAfterSDValue()
		default:
			if len(p.scratch) >= maxSDScratch {
				return &ParseError{Kind: ErrInternalBufferOverflow}
			}
			p.scratch = append(p.scratch, b)
			i++
		}
	}
	p.cur.AdvanceFrame(i)
	if p.cur.Remaining() == 0 {
		return &ParseError{Kind: ErrUnterminatedSDValue}
	}
	return nil
}

func (p *Parser) stepAfterSDValue() error {
	p.state = stateAfterSDValue
	buf := p.cur.Bytes()
	if len(buf) == 0 {
		return nil
	}
	switch buf[0] {
	case ' ':
		p.cur.AdvanceFrame(1)
		p.state = InSDParamName
		return nil
	case ']':
		p.cur.AdvanceFrame(1)
		return p.afterSDElementClosed()
	default:
		return &ParseError{Kind: ErrUnterminatedSDValue}
	}
}

func (p *Parser) afterSDElementClosed() error {
	if p.cur.Remaining() == 0 {
		return p.completeMessage()
	}
	p.state = ExpectingSDOrBody
	return nil
}

func (p *Parser) stepBody() error {
	remaining := p.cur.Remaining()
	avail := p.cur.Bytes()
	n := len(avail)
	if uint32(n) > remaining {
		n = int(remaining)
	}
	if n > 0 {
		if err := p.handler.OnMsgPart(avail[:n]); err != nil {
			return handlerErr(err)
		}
		p.cur.AdvanceFrame(n)
	}
	if p.cur.Remaining() == 0 {
		return p.completeMessage()
	}
	return nil
}

func (p *Parser) ensureHeadEmitted() error {
	if p.headEmitted {
		return nil
	}
	p.headEmitted = true

	head := p.head
	head.Priority = uint16(p.priority)
	head.Version = uint16(p.version)
	if err := p.handler.OnMsgHead(head); err != nil {
		return handlerErr(err)
	}
	return nil
}

func (p *Parser) completeMessage() error {
	length := p.messageLength
	if err := p.handler.OnMsgComplete(length); err != nil {
		return handlerErr(err)
	}
	p.resetForNextFrame()
	return nil
}
