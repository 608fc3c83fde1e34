package reminders

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notification actions offered on every push.
const (
	ActionMarkDone = "mark-done"
	ActionSnooze   = "snooze"
	ActionDelete   = "delete"
)

// PushAction is a button on a displayed notification.
type PushAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

// PushPayload is the JSON body handed to the service worker.
type PushPayload struct {
	Title      string       `json:"title"`
	Body       string       `json:"body"`
	URL        string       `json:"url"`
	ItemID     *int64       `json:"itemId,omitempty"`
	ReminderID *int64       `json:"reminderId,omitempty"`
	Type       Origin       `json:"type"`
	UserID     int64        `json:"userId"`
	Actions    []PushAction `json:"actions"`
}

var defaultActions = []PushAction{
	{Action: ActionMarkDone, Label: "Done"},
	{Action: ActionSnooze, Label: "Snooze 1h"},
	{Action: ActionDelete, Label: "Delete"},
}

// BuildPushPayload builds one payload for a user's batch. The first
// notification is the primary one: it supplies the link, id and type the
// actions apply to.
func BuildPushPayload(userID int64, ns []DueNotification) (PushPayload, error) {
	if len(ns) == 0 {
		return PushPayload{}, fmt.Errorf("build payload for user %d: no notifications", userID)
	}
	primary := ns[0]

	p := PushPayload{
		URL:     primary.Link,
		Type:    primary.Origin,
		UserID:  userID,
		Actions: defaultActions,
	}
	id := primary.EntityID
	if primary.Origin == OriginItem {
		p.ItemID = &id
	} else {
		p.ReminderID = &id
	}

	if len(ns) == 1 {
		p.Title = "Reminder"
		p.Body = primary.Title
		return p, nil
	}

	p.Title = fmt.Sprintf("%d reminders", len(ns))
	titles := make([]string, 0, len(ns))
	for _, n := range ns {
		titles = append(titles, n.Title)
	}
	p.Body = strings.Join(titles, "\n")
	return p, nil
}

// Encode marshals the payload.
func (p PushPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
