package relay

import "smsrelay/internal/command"

type EventKind int

const (
	// EventForward is a message-filter notification pushed by the device OS.
	EventForward EventKind = iota
	// EventStatusReport carries battery level and charging state.
	EventStatusReport
	// EventHeartbeat is an empty-bodied liveness ping.
	EventHeartbeat
	// EventGetConfig asks for the device's config template.
	EventGetConfig
	// EventOperatorUpdate is an inbound chat-bot update (no device).
	EventOperatorUpdate
	// EventUnknown is an authenticated but unparsed payload, echoed verbatim.
	EventUnknown
)

func (k EventKind) String() string {
	switch k {
	case EventForward:
		return "forward"
	case EventStatusReport:
		return "status_report"
	case EventHeartbeat:
		return "heartbeat"
	case EventGetConfig:
		return "get_config"
	case EventOperatorUpdate:
		return "operator_update"
	case EventUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Event is the closed set of inbound shapes. Every variant except
// EventOperatorUpdate carries a Device whose caller proved knowledge of
// the device's secret token.
type Event struct {
	Kind   EventKind
	Device string
	Token  string // GetConfig only: substituted into the config template

	// Forward
	Sender string
	Text   string

	// StatusReport
	Battery  int
	Charging bool

	// Unknown
	RawBody []byte

	// OperatorUpdate
	Update command.Update
}
