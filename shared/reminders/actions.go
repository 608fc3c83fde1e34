package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSnooze is how far a snooze pushes a notification out.
const DefaultSnooze = time.Hour

// ActionRequest is a user's interaction with a delivered notification.
type ActionRequest struct {
	UserID     int64  `json:"-"`
	Action     string `json:"action"`
	EntityType Origin `json:"type"`
	EntityID   int64  `json:"id"`
}

type transitionKey struct {
	action string
	entity Origin
}

type transition func(ctx context.Context, h *ActionHandler, req ActionRequest, now time.Time) error

// transitions is the complete action table. Every cell is a single store call
// on the named entity; nothing else is read or written.
var transitions = map[transitionKey]transition{
	{ActionSnooze, OriginReminder}: func(ctx context.Context, h *ActionHandler, req ActionRequest, now time.Time) error {
		return h.reminders.RescheduleReminder(ctx, req.UserID, req.EntityID, now.Add(h.snooze))
	},
	{ActionMarkDone, OriginReminder}: func(ctx context.Context, h *ActionHandler, req ActionRequest, _ time.Time) error {
		return h.reminders.DeleteReminder(ctx, req.UserID, req.EntityID)
	},
	{ActionDelete, OriginReminder}: func(ctx context.Context, h *ActionHandler, req ActionRequest, _ time.Time) error {
		return h.reminders.DeleteReminder(ctx, req.UserID, req.EntityID)
	},
	{ActionSnooze, OriginItem}: func(ctx context.Context, h *ActionHandler, req ActionRequest, now time.Time) error {
		at := now.Add(h.snooze)
		return h.items.SetItemReminder(ctx, req.UserID, req.EntityID, &at)
	},
	{ActionMarkDone, OriginItem}: func(ctx context.Context, h *ActionHandler, req ActionRequest, _ time.Time) error {
		return h.items.MarkItemDone(ctx, req.UserID, req.EntityID)
	},
	{ActionDelete, OriginItem}: func(ctx context.Context, h *ActionHandler, req ActionRequest, _ time.Time) error {
		return h.items.DeleteItem(ctx, req.UserID, req.EntityID)
	},
}

// ActionHandler applies notification actions.
type ActionHandler struct {
	items     ItemStore
	reminders ReminderStore
	snooze    time.Duration
	logger    zerolog.Logger
}

// NewActionHandler creates an action handler. A non-positive snooze selects DefaultSnooze.
func NewActionHandler(items ItemStore, reminders ReminderStore, snooze time.Duration, logger zerolog.Logger) *ActionHandler {
	if snooze <= 0 {
		snooze = DefaultSnooze
	}
	return &ActionHandler{
		items:     items,
		reminders: reminders,
		snooze:    snooze,
		logger:    logger.With().Str("component", "actions").Logger(),
	}
}

// CanHandle reports whether the pair has a transition.
func CanHandle(action string, entity Origin) bool {
	_, ok := transitions[transitionKey{action, entity}]
	return ok
}

// Handle applies req. Unknown pairs return ErrUnsupportedAction and rows the
// user does not own return ErrNotFound.
func (h *ActionHandler) Handle(ctx context.Context, req ActionRequest, now time.Time) error {
	t, ok := transitions[transitionKey{req.Action, req.EntityType}]
	if !ok {
		return fmt.Errorf("%w: %q on %q", ErrUnsupportedAction, req.Action, req.EntityType)
	}

	if err := t(ctx, h, req, now); err != nil {
		return fmt.Errorf("%s %s %d: %w", req.Action, req.EntityType, req.EntityID, err)
	}

	h.logger.Info().
		Int64("user_id", req.UserID).
		Str("action", req.Action).
		Str("entity_type", string(req.EntityType)).
		Int64("entity_id", req.EntityID).
		Msg("notification action applied")
	return nil
}
