package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nebulabroadcast/nebula-worker/internal/audit"
)

// commandQoS is the subscription QoS for control commands.
const commandQoS = 1

// CommandMessage is a control command received over MQTT.
type CommandMessage struct {
	Method string `json:"method"`
	Params Args   `json:"params"`
	// ID is echoed in the reply so callers can match it.
	ID string `json:"id,omitempty"`
}

// subscribeCommands accepts commands on nebula/<site>/playout/+/command and
// publishes each reply on .../playout/<ch>/response. Broker ACLs guard this
// path; tokens are not checked.
func (s *Server) subscribeCommands(ctx context.Context) error {
	if s.mqtt == nil {
		return nil
	}
	topic := s.mqtt.Topics().AllPlayoutCommands()
	s.logger.Info("subscribing to control commands", "topic", topic)
	return s.mqtt.Subscribe(topic, commandQoS, func(t string, payload []byte) error {
		return s.handleCommandMessage(ctx, t, payload)
	})
}

func (s *Server) handleCommandMessage(ctx context.Context, topic string, payload []byte) error {
	id, err := channelFromTopic(topic)
	if err != nil {
		return err
	}
	ch, found := s.channels[id]
	if !found {
		s.logger.Debug("command for a channel this worker does not run", "channel", id)
		return nil
	}

	var msg CommandMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return fmt.Errorf("decoding command on %s: %w", topic, err)
	}

	res := Dispatch(ctx, ch, msg.Method, msg.Params)
	s.recordCommand(ctx, id, msg.Method, audit.SourceMQTT, "", msg.Params, res)
	s.logger.Info("MQTT command", "channel", id, "method", msg.Method, "response", res.Code)

	reply := res.Body()
	reply["method"] = msg.Method
	if msg.ID != "" {
		reply["id"] = msg.ID
	}
	if err := s.mqtt.PublishJSON(s.mqtt.Topics().Playout(id, "response"), reply, false); err != nil {
		return fmt.Errorf("publishing command reply: %w", err)
	}
	return nil
}

// channelFromTopic extracts <ch> from .../playout/<ch>/command.
func channelFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "command" || parts[len(parts)-3] != "playout" {
		return 0, fmt.Errorf("unexpected command topic %q", topic)
	}
	id, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("unexpected command topic %q", topic)
	}
	return id, nil
}
