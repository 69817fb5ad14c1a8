package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledTaskNextDue(t *testing.T) {
	daily := "FREQ=DAILY;BYHOUR=8;BYMINUTE=0;BYSECOND=0"
	broken := "FREQ=SOMETIMES"
	due := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		task  ScheduledTask
		after time.Time
		want  time.Time
	}{
		{
			name:  "one time task keeps due",
			task:  ScheduledTask{TaskType: ScheduledTaskTypeOneTime, Due: due, RecurringInterval: &daily},
			after: due.Add(time.Hour),
			want:  due,
		},
		{
			name:  "daily task moves to next morning",
			task:  ScheduledTask{TaskType: ScheduledTaskTypeRecurring, Due: due, RecurringInterval: &daily},
			after: due.Add(time.Minute),
			want:  due.AddDate(0, 0, 1),
		},
		{
			name:  "daily task skips missed days",
			task:  ScheduledTask{TaskType: ScheduledTaskTypeRecurring, Due: due, RecurringInterval: &daily},
			after: due.AddDate(0, 0, 3).Add(time.Hour),
			want:  due.AddDate(0, 0, 4),
		},
		{
			name:  "invalid rule keeps due",
			task:  ScheduledTask{TaskType: ScheduledTaskTypeRecurring, Due: due, RecurringInterval: &broken},
			after: due.Add(time.Hour),
			want:  due,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(tt.task.NextDue(tt.after)), "got %v", tt.task.NextDue(tt.after))
		})
	}
}
