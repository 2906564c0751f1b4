package notify

import (
	"fmt"
	"time"

	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/output"
	"github.com/joescharf/pomo/internal/timer"
)

// PhaseCompleteKey identifies the end of one phase of one cycle.
func PhaseCompleteKey(cycleID string, phase models.Mode) string {
	return fmt.Sprintf("phase-complete-%s-%s", cycleID, phase)
}

// ReminderKey identifies one reminder occurrence on one calendar day.
func ReminderKey(r models.ReminderSpec, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", r.Key, r.TimeOfDay, at.Format("2006-01-02"))
}

func FocusInterruptedKey(sessionID, interruptionID string) string {
	return fmt.Sprintf("focus-interrupted-%s-%s", sessionID, interruptionID)
}

func WelcomeBackKey(sessionID, interruptionID string) string {
	return fmt.Sprintf("focus-welcome-%s-%s", sessionID, interruptionID)
}

// PhaseComplete builds the notification for a natural phase completion.
func PhaseComplete(ev timer.Event) models.Notification {
	n := models.Notification{
		Kind:     models.NotificationPhaseComplete,
		DedupKey: PhaseCompleteKey(ev.CycleID, ev.Phase),
		Tag:      "pomodoro-timer",
	}
	if ev.Phase == models.ModeWork {
		n.Title = "Work Session Complete!"
		n.Body = "Time for a break. Rest timer starting now."
	} else {
		n.Title = "Break Complete!"
		n.Body = "Ready to work again. Start a new work session when ready."
	}
	return n
}

func Reminder(r models.ReminderSpec, at time.Time) models.Notification {
	label := r.Label
	if label == "" {
		label = r.Key
	}
	return models.Notification{
		Kind:     models.NotificationReminder,
		Title:    "Reminder",
		Body:     "Time for: " + label,
		DedupKey: ReminderKey(r, at),
		Tag:      "reminder-" + r.Key,
	}
}

func FocusInterrupted(sessionID, interruptionID string) models.Notification {
	return models.Notification{
		Kind:     models.NotificationFocusInterrupted,
		Title:    "Focus Interrupted",
		Body:     "You left the app. Return to continue your focus session.",
		DedupKey: FocusInterruptedKey(sessionID, interruptionID),
		Tag:      "focus",
	}
}

func WelcomeBack(sessionID, interruptionID string, awaySeconds int) models.Notification {
	return models.Notification{
		Kind:     models.NotificationFocusWelcomeBack,
		Title:    "Welcome Back!",
		Body:     fmt.Sprintf("You were away for %s. Continue focusing!", output.FormatDuration(awaySeconds)),
		DedupKey: WelcomeBackKey(sessionID, interruptionID),
		Tag:      "focus",
	}
}
