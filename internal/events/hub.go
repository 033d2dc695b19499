package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broadcaster is satisfied by the websocket hub
type Broadcaster interface {
	BroadcastMessage(msg []byte)
}

// HubNotifier pushes events to connected websocket clients
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (h *HubNotifier) Notify(_ context.Context, event Event) error {
	msg, err := json.Marshal(map[string]interface{}{
		"type":  event.EventType,
		"event": event,
	})
	if err != nil {
		return fmt.Errorf("marshal websocket event: %w", err)
	}
	h.hub.BroadcastMessage(msg)
	return nil
}
