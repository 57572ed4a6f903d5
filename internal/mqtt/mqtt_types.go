package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"robot-link/internal/eventBus"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingMsgpack = "msgpack"
	EncodingJSON    = "json"
)

// EventTopic is where ev is published for the node at addr.
func EventTopic(prefix, addr string, t eventBus.EventType) string {
	return fmt.Sprintf("%s/%s/%s", prefix, addr, strings.ToLower(string(t)))
}

// ControlTopic is where a controller at addr takes control input.
func ControlTopic(prefix, addr string) string {
	return fmt.Sprintf("%s/%s/control", prefix, addr)
}

func EncodeEvent(ev eventBus.Event, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingJSON:
		return json.Marshal(ev)
	case EncodingMsgpack, "":
		return msgpack.Marshal(ev)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func DecodeEvent(data []byte, encoding string) (eventBus.Event, error) {
	var ev eventBus.Event
	var err error
	switch encoding {
	case EncodingJSON:
		err = json.Unmarshal(data, &ev)
	case EncodingMsgpack, "":
		err = msgpack.Unmarshal(data, &ev)
	default:
		err = fmt.Errorf("unknown encoding %q", encoding)
	}
	return ev, err
}
