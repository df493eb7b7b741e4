package syslog

import (
	"encoding/json"
	"log/slog"

	"github.com/ProjectMeniscus/portal/internal/logging"
)

// Sender is the minimal capability the assembler needs from a downstream
// transport: push one already-serialized record. Declared locally (rather
// than importing the transport package) to keep internal/syslog free of a
// dependency on the transport's wire client.
type Sender interface {
	Send(data []byte) error
}

// Assembler implements the parser's Handler capability set, accumulating one
// MessageHead and body per frame and serializing the completed record to
// JSON before handing it to a Sender.
type Assembler struct {
	sender Sender
	logger *slog.Logger

	head MessageHead
	body []byte

	currentElement string
	currentField   string
}

// NewAssembler creates an Assembler that pushes completed records to sender.
func NewAssembler(sender Sender, logger *slog.Logger) *Assembler {
	return &Assembler{
		sender: sender,
		logger: logging.Default(logger).With("component", "assembler"),
	}
}

func (a *Assembler) OnMsgHead(head MessageHead) error {
	a.head = head
	a.body = a.body[:0]
	return nil
}

func (a *Assembler) OnMsgPart(part []byte) error {
	a.body = append(a.body, part...)
	return nil
}

func (a *Assembler) OnSDElement(name string) error {
	a.currentElement = name
	a.head.AddSDElement(name)
	return nil
}

func (a *Assembler) OnSDField(name string) error {
	a.currentField = name
	return nil
}

func (a *Assembler) OnSDValue(value string) error {
	a.head.SetSDParam(a.currentElement, a.currentField, value)
	return nil
}

// wireRecord is the JSON shape of a completed MessageRecord. Field order is
// stable (struct field order) but not a contract consumers may rely on.
type wireRecord struct {
	Priority  uint16                       `json:"priority"`
	Version   uint16                       `json:"version"`
	Timestamp string                       `json:"timestamp"`
	Hostname  string                       `json:"hostname"`
	Appname   string                       `json:"appname"`
	ProcessID string                       `json:"processid"`
	MessageID string                       `json:"messageid"`
	SD        map[string]map[string]string `json:"sd"`
	Message   string                       `json:"message"`
	MsgLength uint32                       `json:"msg_length"`
}

// OnMsgComplete serializes the accumulated record to JSON and pushes it to
// the sender. encoding/json already replaces invalid UTF-8 byte sequences in
// string fields with U+FFFD, satisfying the spec's body-decoding rule
// without extra work. A send failure is logged and the message is dropped;
// it does not propagate as a parser error, since a slow or absent consumer
// must not stop ingestion.
func (a *Assembler) OnMsgComplete(length uint32) error {
	sd := a.head.SD
	if sd == nil {
		sd = map[string]map[string]string{}
	}

	rec := wireRecord{
		Priority:  a.head.Priority,
		Version:   a.head.Version,
		Timestamp: a.head.Timestamp,
		Hostname:  a.head.Hostname,
		Appname:   a.head.Appname,
		ProcessID: a.head.ProcessID,
		MessageID: a.head.MessageID,
		SD:        sd,
		Message:   string(a.body),
		MsgLength: length,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		a.logger.Error("record marshal failed", "error", err)
		a.reset()
		return nil
	}

	if err := a.sender.Send(data); err != nil {
		a.logger.Error("transport send failed", "error", err)
	}

	a.reset()
	return nil
}

func (a *Assembler) reset() {
	a.head = MessageHead{}
	a.body = a.body[:0]
	a.currentElement = ""
	a.currentField = ""
}
