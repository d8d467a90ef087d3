package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Run routing/state.
	ErrRunBusy     = "E_RUN_BUSY"
	ErrRunStopping = "E_RUN_STOPPING"

	// Input layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrUnknownVerb = "E_UNKNOWN_VERB"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrRunBusy:         {},
	ErrRunStopping:     {},
	ErrBadRequest:      {},
	ErrUnknownVerb:     {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// NewError builds an ERROR message. ref echoes the INPUT seq it answers, if any.
func NewError(code, message string, ref uint64) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		Code:            code,
		Message:         message,
		Ref:             ref,
	}
}
