package channel

import "encoding/json"

// Frame type tags exchanged with the broker. The framing is deliberately
// STOMP-shaped: subscriptions are identified by client-chosen ids and
// broadcast messages echo the subscription they were matched against.
const (
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameSend        = "SEND"
	FrameMessage     = "MESSAGE"
)

// Frame is the JSON envelope for every message on the wire.
type Frame struct {
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	Subscription string          `json:"subscription,omitempty"`
	Destination  string          `json:"destination,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
}
