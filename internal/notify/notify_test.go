package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/testutil"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
	// fail makes every send to this address error out
	fail string
}

func (m *fakeMailer) SendEmail(to []string, subject, body string) error {
	if len(to) > 0 && to[0] == m.fail {
		return errors.New("smtp: mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeMessenger struct {
	texts map[string][]string
}

func (m *fakeMessenger) SendMessage(_ context.Context, to, text string) error {
	if m.texts == nil {
		m.texts = map[string][]string{}
	}
	m.texts[to] = append(m.texts[to], text)
	return nil
}

type fakeOutbox struct {
	queued []Message
	err    error
}

func (o *fakeOutbox) Enqueue(_ context.Context, msg Message) error {
	if o.err != nil {
		return o.err
	}
	o.queued = append(o.queued, msg)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type notifyEnv struct {
	db        *gorm.DB
	mailer    *fakeMailer
	messenger *fakeMessenger
	now       time.Time
	d         *Dispatcher
}

func newNotifyEnv(t *testing.T, now time.Time) *notifyEnv {
	t.Helper()
	env := &notifyEnv{
		db:        testutil.NewDB(t),
		mailer:    &fakeMailer{},
		messenger: &fakeMessenger{},
		now:       now,
	}
	env.d = NewDispatcher(env.db, env.mailer, env.messenger, "https://courses.example.com/").
		WithClock(func() time.Time { return env.now })
	return env
}

func (e *notifyEnv) enrollment(t *testing.T, user *models.User, course *models.Course, status models.EnrollmentStatus) *models.Enrollment {
	t.Helper()
	enr := &models.Enrollment{UserID: user.ID, CourseID: course.ID, Status: status, StartedAt: day(2025, 1, 1)}
	require.NoError(t, e.db.Create(enr).Error)
	return enr
}

func (e *notifyEnv) installment(t *testing.T, enr *models.Enrollment, step int, due time.Time, status models.InstallmentStatus) {
	t.Helper()
	inst := &models.Installment{
		EnrollmentID: enr.ID,
		Step:         step,
		Amount:       decimal.RequireFromString("100.00"),
		DueDate:      due,
		Status:       status,
	}
	require.NoError(t, e.db.Create(inst).Error)
}

func TestRender(t *testing.T) {
	got := render("Hi $name, $name_full owes $amount", map[string]string{
		"name":      "Ana",
		"name_full": "Ana Lima",
		"amount":    "10.00",
	})
	assert.Equal(t, "Hi Ana, Ana Lima owes 10.00", got)
}

func TestDeliverFollowsPreference(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 1))
	user := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	require.NoError(t, env.db.Model(user).Update("whatsapp_number", "628111").Error)

	msg := Message{UserID: user.ID, Kind: KindReminder, Subject: "Due soon", Body: "Pay up"}

	channel, err := env.d.Deliver(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationChannelEmail, channel)
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, env.mailer.sent[0].to)

	pref := &models.UserNotifPreference{UserID: user.ID, Channel: models.NotificationChannelWhatsapp}
	require.NoError(t, env.db.Create(pref).Error)

	channel, err = env.d.Deliver(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationChannelWhatsapp, channel)
	assert.Equal(t, []string{"*Due soon*\n\nPay up"}, env.messenger.texts["628111"])
	assert.Len(t, env.mailer.sent, 1)

	require.NoError(t, env.db.Model(pref).Update("channel", models.NotificationChannelNone).Error)
	channel, err = env.d.Deliver(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationChannelNone, channel)
	assert.Len(t, env.mailer.sent, 1)
	assert.Len(t, env.messenger.texts["628111"], 1)
}

func TestDeliverWhatsappWithoutNumber(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 1))
	user := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	require.NoError(t, env.db.Create(&models.UserNotifPreference{UserID: user.ID, Channel: models.NotificationChannelWhatsapp}).Error)

	_, err := env.d.Deliver(context.Background(), Message{UserID: user.ID, Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, ErrNoWhatsappNumber)
}

func TestLifecycleNoticesUseOutbox(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 1))
	user := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	course := testutil.CreateCourse(t, env.db, testutil.CourseOpts{Installments: 3, Parts: 3})
	enr := env.enrollment(t, user, course, models.EnrollmentStatusSuspended)

	outbox := &fakeOutbox{}
	env.d.WithOutbox(outbox)

	env.d.EnrollmentSuspended(context.Background(), enr.ID)
	require.Len(t, outbox.queued, 1)
	assert.Equal(t, KindSuspended, outbox.queued[0].Kind)
	assert.Contains(t, outbox.queued[0].Body, "https://courses.example.com/courses/"+course.Slug)
	assert.Empty(t, env.mailer.sent)

	// a broken queue still gets the message out
	outbox.err = errors.New("queue down")
	env.d.EnrollmentSuspended(context.Background(), enr.ID)
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "Access to "+course.Title+" is suspended", env.mailer.sent[0].subject)
}

func TestFrozenMessage(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 1))
	user := &models.User{ID: 7, Name: "Ana"}
	course := &models.Course{Title: "Go", Slug: "go"}
	from, until := day(2025, 3, 1), day(2025, 3, 31)
	enr := &models.Enrollment{FrozenStartedAt: &from, FrozenUntil: &until, FreezeDaysUsed: 30}

	msg := env.d.FrozenMessage(user, course, enr)
	assert.Equal(t, KindFrozen, msg.Kind)
	assert.Contains(t, msg.Body, "from 2025-03-01 until 2025-03-31 (30 days)")
	assert.Contains(t, msg.Body, "Freeze days left: 60")
}

func TestSalaryReminders(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 26).Add(9*time.Hour))
	course := testutil.CreateCourse(t, env.db, testutil.CourseOpts{Installments: 3, Parts: 3})

	ana := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	anaEnr := env.enrollment(t, ana, course, models.EnrollmentStatusActive)
	env.installment(t, anaEnr, 1, day(2025, 3, 5), models.InstallmentStatusOverdue)
	env.installment(t, anaEnr, 2, day(2025, 3, 27), models.InstallmentStatusDue)

	bo := testutil.CreateUser(t, env.db, "bo@example.com", "pw")
	boEnr := env.enrollment(t, bo, course, models.EnrollmentStatusActive)
	env.installment(t, boEnr, 1, day(2025, 3, 1), models.InstallmentStatusPaid)
	env.installment(t, boEnr, 2, day(2025, 4, 1), models.InstallmentStatusDue)

	cy := testutil.CreateUser(t, env.db, "cy@example.com", "pw")
	cyEnr := env.enrollment(t, cy, course, models.EnrollmentStatusActive)
	env.installment(t, cyEnr, 1, day(2025, 3, 28), models.InstallmentStatusDue)

	res, err := env.d.SendSalaryReminders(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Sent)

	require.Len(t, env.mailer.sent, 2)
	assert.Equal(t, []string{"ana@example.com"}, env.mailer.sent[0].to)
	assert.Contains(t, env.mailer.sent[0].body, "Installment 1")
	assert.Contains(t, env.mailer.sent[0].body, "2025-03-05")
	assert.Equal(t, []string{"cy@example.com"}, env.mailer.sent[1].to)
}

func TestSalaryRemindersOnlyOnReminderDay(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 20))
	course := testutil.CreateCourse(t, env.db, testutil.CourseOpts{Installments: 3, Parts: 3})
	ana := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	enr := env.enrollment(t, ana, course, models.EnrollmentStatusActive)
	env.installment(t, enr, 1, day(2025, 3, 10), models.InstallmentStatusDue)

	res, err := env.d.SendSalaryReminders(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, env.mailer.sent)

	res, err = env.d.SendSalaryReminders(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestSalaryReminderFailureTriesNextInstallment(t *testing.T) {
	env := newNotifyEnv(t, day(2025, 3, 26))
	course := testutil.CreateCourse(t, env.db, testutil.CourseOpts{Installments: 3, Parts: 3})
	ana := testutil.CreateUser(t, env.db, "ana@example.com", "pw")
	enr := env.enrollment(t, ana, course, models.EnrollmentStatusActive)
	env.installment(t, enr, 1, day(2025, 3, 5), models.InstallmentStatusOverdue)
	env.installment(t, enr, 2, day(2025, 3, 20), models.InstallmentStatusDue)

	env.mailer.fail = "ana@example.com"
	res, err := env.d.SendSalaryReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 2, res.Failed)
}

func TestAbsenceAlerts(t *testing.T) {
	now := day(2025, 5, 1).Add(10 * time.Hour)
	env := newNotifyEnv(t, now)
	course := testutil.CreateCourse(t, env.db, testutil.CourseOpts{Installments: 3, Parts: 3})

	seen := func(user *models.User, lastSeen time.Time, alerted *time.Time) {
		require.NoError(t, env.db.Create(&models.UserActivity{UserID: user.ID, LastSeen: lastSeen, LastAbsenceEmailAt: alerted}).Error)
	}

	away := testutil.CreateUser(t, env.db, "away@example.com", "pw")
	env.enrollment(t, away, course, models.EnrollmentStatusActive)
	seen(away, now.AddDate(0, 0, -20), nil)

	recent := testutil.CreateUser(t, env.db, "recent@example.com", "pw")
	env.enrollment(t, recent, course, models.EnrollmentStatusActive)
	seen(recent, now.AddDate(0, 0, -3), nil)

	alerted := testutil.CreateUser(t, env.db, "alerted@example.com", "pw")
	env.enrollment(t, alerted, course, models.EnrollmentStatusActive)
	stamp := now.AddDate(0, 0, -5)
	seen(alerted, now.AddDate(0, 0, -30), &stamp)

	suspended := testutil.CreateUser(t, env.db, "suspended@example.com", "pw")
	env.enrollment(t, suspended, course, models.EnrollmentStatusSuspended)
	seen(suspended, now.AddDate(0, 0, -40), nil)

	res, err := env.d.SendAbsenceAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, []string{"away@example.com"}, env.mailer.sent[0].to)
	assert.Equal(t, "We miss you", env.mailer.sent[0].subject)

	var act models.UserActivity
	require.NoError(t, env.db.Where("user_id = ?", away.ID).First(&act).Error)
	require.NotNil(t, act.LastAbsenceEmailAt)

	// one alert per absence
	res, err = env.d.SendAbsenceAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
}
