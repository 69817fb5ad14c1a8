package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseplatform_echo/internal/models"
)

func TestCheckFreezeAllowance(t *testing.T) {
	tests := []struct {
		name string
		used int
		days int
		want error
	}{
		{"first freeze", 0, 30, nil},
		{"whole allowance", 0, 90, nil},
		{"zero days", 0, 0, ErrInvalidFreezeDays},
		{"negative days", 0, -3, ErrInvalidFreezeDays},
		{"over single limit", 0, 91, ErrInvalidFreezeDays},
		{"exactly fills cap", 60, 30, nil},
		{"one over cap", 60, 31, ErrFreezeCapExceeded},
		{"cap exhausted", 90, 1, ErrFreezeCapExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckFreezeAllowance(tt.used, tt.days))
		})
	}
}

func TestFreezeAndUnfreeze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr := f.enroll(t, f.user, f.course)

	frozen, err := f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID, Days: 60, Password: "secret-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFrozen, frozen.Status)
	assert.Equal(t, 60, frozen.FreezeDaysUsed)

	stored := f.reload(t, enr.ID)
	require.NotNil(t, stored.FrozenStartedAt)
	require.NotNil(t, stored.FrozenUntil)
	assert.Equal(t, "2025-01-10", stored.FrozenStartedAt.Format(time.DateOnly))
	assert.Equal(t, "2025-03-11", stored.FrozenUntil.Format(time.DateOnly))
	assert.Equal(t, []uint{enr.ID}, f.notifier.frozen)

	_, err = f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID, Days: 5, Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrNotActive)

	f.clock.Add(10)
	active, err := f.engine.Unfreeze(ctx, enr.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, active.Status)

	stored = f.reload(t, enr.ID)
	assert.Nil(t, stored.FrozenStartedAt)
	assert.Nil(t, stored.FrozenUntil)
	assert.Equal(t, 60, stored.FreezeDaysUsed)

	_, err = f.engine.Unfreeze(ctx, enr.ID, f.user.ID)
	assert.ErrorIs(t, err, ErrNotFrozen)
}

func TestFreezeLifetimeCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr := f.enroll(t, f.user, f.course)
	freeze := func(days int) error {
		_, err := f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID, Days: days, Password: "secret-pass"})
		return err
	}

	require.NoError(t, freeze(60))
	_, err := f.engine.Unfreeze(ctx, enr.ID, f.user.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, freeze(31), ErrFreezeCapExceeded)
	assert.Equal(t, 60, f.reload(t, enr.ID).FreezeDaysUsed)

	require.NoError(t, freeze(30))
	_, err = f.engine.Unfreeze(ctx, enr.ID, f.user.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, freeze(1), ErrFreezeCapExceeded)
	stored := f.reload(t, enr.ID)
	assert.Equal(t, 90, stored.FreezeDaysUsed)
	assert.Equal(t, models.EnrollmentStatusActive, stored.Status)
}

func TestFreezeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr := f.enroll(t, f.user, f.course)

	_, err := f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID, Days: 10, Password: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID, Days: 0, Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrInvalidFreezeDays)

	_, err = f.engine.Freeze(ctx, FreezeRequest{EnrollmentID: enr.ID, UserID: f.user.ID + 100, Days: 10, Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)

	stored := f.reload(t, enr.ID)
	assert.Equal(t, models.EnrollmentStatusActive, stored.Status)
	assert.Zero(t, stored.FreezeDaysUsed)
	assert.Empty(t, f.notifier.frozen)
}

func TestEffectiveOverdueDays(t *testing.T) {
	today := day(2025, 3, 21)
	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name string
		due  time.Time
		enr  models.Enrollment
		want int
	}{
		{
			name: "not frozen",
			due:  day(2025, 1, 10),
			enr:  models.Enrollment{Status: models.EnrollmentStatusActive},
			want: 70,
		},
		{
			name: "last 30 days frozen",
			due:  day(2025, 1, 10),
			enr: models.Enrollment{
				Status:          models.EnrollmentStatusFrozen,
				FrozenStartedAt: ptr(day(2025, 2, 19)),
				FrozenUntil:     ptr(day(2025, 4, 10)),
			},
			want: 40,
		},
		{
			name: "freeze already ended but status still frozen",
			due:  day(2025, 1, 10),
			enr: models.Enrollment{
				Status:          models.EnrollmentStatusFrozen,
				FrozenStartedAt: ptr(day(2025, 2, 1)),
				FrozenUntil:     ptr(day(2025, 2, 11)),
			},
			want: 60,
		},
		{
			name: "freeze covers the whole lateness",
			due:  day(2025, 3, 11),
			enr: models.Enrollment{
				Status:          models.EnrollmentStatusFrozen,
				FrozenStartedAt: ptr(day(2025, 3, 1)),
				FrozenUntil:     ptr(day(2025, 3, 31)),
			},
			want: 0,
		},
		{
			name: "stale window on an active enrollment",
			due:  day(2025, 1, 10),
			enr: models.Enrollment{
				Status:          models.EnrollmentStatusActive,
				FrozenStartedAt: ptr(day(2025, 2, 19)),
				FrozenUntil:     ptr(day(2025, 4, 10)),
			},
			want: 70,
		},
		{
			name: "not yet due",
			due:  day(2025, 4, 1),
			enr:  models.Enrollment{Status: models.EnrollmentStatusActive},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveOverdueDays(tt.due, today, &tt.enr))
		})
	}
}
