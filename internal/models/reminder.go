package models

// ReminderSpec is a reminder supplied by habit management.
type ReminderSpec struct {
	Key       string `json:"key" yaml:"key"`
	Label     string `json:"label" yaml:"label"`
	TimeOfDay string `json:"timeOfDay" yaml:"time"` // HH:MM, local time
	Weekdays  []int  `json:"weekdays" yaml:"weekdays"`
}

// OnWeekday reports whether the reminder is scheduled for day (0 = Sunday).
func (r ReminderSpec) OnWeekday(day int) bool {
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}
