package syslog

// ParserState is a tagged variant enumerating the lexical position within a
// frame. The state transition table driven by Parser.Feed is the sole
// authority on transitions; this type exists for introspection and tests.
type ParserState int

const (
	ExpectingOctetCount ParserState = iota
	InOctetCount
	ExpectingPriority
	InPriority
	ExpectingVersion
	InVersion
	ExpectingTimestamp
	InTimestamp
	ExpectingHostname
	InHostname
	ExpectingAppname
	InAppname
	ExpectingProcessId
	InProcessId
	ExpectingMessageId
	InMessageId
	ExpectingSDOrBody
	InSDElementName
	InSDParamName
	ExpectingSDParamValue
	InSDParamValue
	InBody
	MessageComplete

	// stateAfterSDValue is an internal disambiguation point between a
	// closed SD param value and whatever follows it (another param, or
	// the closing bracket of the element). It has no counterpart in the
	// spec's macro state list because it is purely a chunk-boundary
	// resumption point, not a distinct lexical position.
	stateAfterSDValue
)

func (s ParserState) String() string {
	switch s {
	case ExpectingOctetCount:
		return "ExpectingOctetCount"
	case InOctetCount:
		return "InOctetCount"
	case ExpectingPriority:
		return "ExpectingPriority"
	case InPriority:
		return "InPriority"
	case ExpectingVersion:
		return "ExpectingVersion"
	case InVersion:
		return "InVersion"
	case ExpectingTimestamp:
		return "ExpectingTimestamp"
	case InTimestamp:
		return "InTimestamp"
	case ExpectingHostname:
		return "ExpectingHostname"
	case InHostname:
		return "InHostname"
	case ExpectingAppname:
		return "ExpectingAppname"
	case InAppname:
		return "InAppname"
	case ExpectingProcessId:
		return "ExpectingProcessId"
	case InProcessId:
		return "InProcessId"
	case ExpectingMessageId:
		return "ExpectingMessageId"
	case InMessageId:
		return "InMessageId"
	case ExpectingSDOrBody:
		return "ExpectingSDOrBody"
	case InSDElementName:
		return "InSDElementName"
	case InSDParamName:
		return "InSDParamName"
	case ExpectingSDParamValue:
		return "ExpectingSDParamValue"
	case InSDParamValue:
		return "InSDParamValue"
	case InBody:
		return "InBody"
	case MessageComplete:
		return "MessageComplete"
	default:
		return "Unknown"
	}
}

// headerField describes one of the five space-delimited header tokens
// (timestamp, hostname, appname, processid, messageid) read in order after
// the version. Parsing them through a small table, rather than five
// near-identical state blocks, is what keeps the field-transition logic in
// one place.
type headerField struct {
	name     string
	maxLen   int
	expect   ParserState
	in       ParserState
	assignTo func(h *MessageHead, v string)
}

var headerFields = [5]headerField{
	{
		name: "timestamp", maxLen: 32,
		expect: ExpectingTimestamp, in: InTimestamp,
		assignTo: func(h *MessageHead, v string) { h.Timestamp = v },
	},
	{
		name: "hostname", maxLen: 255,
		expect: ExpectingHostname, in: InHostname,
		assignTo: func(h *MessageHead, v string) { h.Hostname = v },
	},
	{
		name: "appname", maxLen: 48,
		expect: ExpectingAppname, in: InAppname,
		assignTo: func(h *MessageHead, v string) { h.Appname = v },
	},
	{
		name: "processid", maxLen: 128,
		expect: ExpectingProcessId, in: InProcessId,
		assignTo: func(h *MessageHead, v string) { h.ProcessID = v },
	},
	{
		name: "messageid", maxLen: 32,
		expect: ExpectingMessageId, in: InMessageId,
		assignTo: func(h *MessageHead, v string) { h.MessageID = v },
	},
}
