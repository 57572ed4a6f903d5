package mqtt

import (
	"bytes"
	"encoding/json"

	"robot-link/internal/control"
	"robot-link/internal/message"

	logs "github.com/danmuck/smplog"
	"github.com/eclipse/paho.mqtt.golang"
)

// ProcessControlMessage handles messages on a controller's control topic.
// A JSON object sets the axes directly; anything else is read as a command
// line ("p 10 0 0 0", "stop", "go").
func ProcessControlMessage(snapshot *control.Snapshot) func(mqtt.Client, mqtt.Message) {
	return func(client mqtt.Client, msg mqtt.Message) {
		body := bytes.TrimSpace(msg.Payload())

		if bytes.HasPrefix(body, []byte("{")) {
			var c message.Control
			if err := json.Unmarshal(body, &c); err != nil {
				logs.Warnf("[MQTT] bad control payload on %s: %v", msg.Topic(), err)
				return
			}
			if !snapshot.Set(c) {
				logs.Debugf("[MQTT] controls inactive, ignoring update on %s", msg.Topic())
				return
			}
			logs.Debugf("[MQTT] control set from %s", msg.Topic())
			return
		}

		cmd, err := control.ParseCommand(string(body))
		if err != nil {
			logs.Warnf("[MQTT] %v", err)
			return
		}
		snapshot.Apply(cmd)
		logs.Debugf("[MQTT] applied %q from %s", body, msg.Topic())
	}
}
