package eventbus

import "time"

// Type names the event kinds emitted by the UA group, call, and
// registration state machines per spec §4.10/§4.9.
type Type string

const (
	RegisterOk     Type = "RegisterOk"
	RegisterFail   Type = "RegisterFail"
	Unregistering  Type = "Unregistering"
	ShuttingDown   Type = "ShuttingDown"
	CallIncoming   Type = "CallIncoming"
	CallOutgoing   Type = "CallOutgoing"
	CallRinging    Type = "CallRinging"
	CallProgress   Type = "CallProgress"
	CallAnswered   Type = "CallAnswered"
	CallEstablished Type = "CallEstablished"
	CallClosed     Type = "CallClosed"
	RemoteSdp      Type = "RemoteSdp"
	VuTx           Type = "VuTx"
	VuRx           Type = "VuRx"
	DtmfPressed    Type = "DtmfPressed"
	DtmfReleased   Type = "DtmfReleased"
	Vad            Type = "Vad"
	ModuleEvent    Type = "ModuleEvent"
)

// Event is the value-typed payload published on the Bus. Only the fields
// relevant to Type are populated; handlers must not mutate Data's
// contents after return (the bus does not copy it defensively, so
// construct fresh event values rather than reusing buffers).
type Event struct {
	Type   Type
	Time   time.Time
	UAName string
	CallID string
	Reason string
	Digit  byte
	Active bool
	Data   any
}

func New(t Type, ua, callID string) Event {
	return Event{Type: t, UAName: ua, CallID: callID}
}
