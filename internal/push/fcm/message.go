package fcm

import (
	"encoding/json"
	"fmt"

	"github.com/orionwholesale/storefront/internal/push"
)

// wireMessage is the JSON published to the push subscription. It mirrors the
// FCM message layout: a data map plus an optional notification block.
type wireMessage struct {
	MessageID    string             `json:"messageId"`
	Data         map[string]any     `json:"data"`
	Notification *push.Notification `json:"notification"`
}

// DecodeMessage converts a Pub/Sub payload into a RemoteMessage. Attributes
// fill data keys the payload does not set, and id is used when the payload
// carries no message id. An empty payload is allowed when attributes carry the data.
func DecodeMessage(id string, payload []byte, attributes map[string]string) (push.RemoteMessage, error) {
	var wire wireMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &wire); err != nil {
			return push.RemoteMessage{}, fmt.Errorf("decoding push message: %w", err)
		}
	}

	msg := push.RemoteMessage{
		MessageID:    wire.MessageID,
		Data:         make(map[string]string, len(wire.Data)+len(attributes)),
		Notification: wire.Notification,
	}
	if msg.MessageID == "" {
		msg.MessageID = id
	}

	// FCM data values are strings; numbers and booleans from loose publishers
	// are kept in their JSON text form.
	for k, v := range wire.Data {
		switch val := v.(type) {
		case string:
			msg.Data[k] = val
		case nil:
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				return push.RemoteMessage{}, fmt.Errorf("decoding push data %q: %w", k, err)
			}
			msg.Data[k] = string(raw)
		}
	}
	for k, v := range attributes {
		if _, ok := msg.Data[k]; !ok {
			msg.Data[k] = v
		}
	}

	if len(msg.Data) == 0 && msg.Notification == nil {
		return push.RemoteMessage{}, fmt.Errorf("decoding push message: empty message")
	}
	return msg, nil
}
