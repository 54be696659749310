package realtime

import (
	"context"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
)

// HubNotifier forwards notifications to the websocket clients of the
// notification's team.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier wraps a hub as a notify.Notifier.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Notify implements notify.Notifier.
func (n *HubNotifier) Notify(ctx context.Context, notification notify.Notification) {
	n.hub.BroadcastToTeam(notification.TeamID, string(notification.Level), ChannelNotifications, map[string]interface{}{
		"message": notification.Message,
		"detail":  notification.Detail,
		"item_id": notification.ItemID,
		"at":      notification.At,
	})
}
