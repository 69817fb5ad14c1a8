package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
)

// Kind names what a message is about
type Kind string

const (
	KindConfirmation Kind = "enrollment_confirmation"
	KindSuspended    Kind = "enrollment_suspended"
	KindFrozen       Kind = "enrollment_frozen"
	KindReminder     Kind = "payment_reminder"
	KindAbsence      Kind = "absence_alert"
)

// Message is a rendered notification for one user
type Message struct {
	UserID  uint   `json:"user_id"`
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	confirmationTemplate = `Hi $name,

Your payment of $amount $currency for "$course" was received.
Progress so far: $progress%
$schedule
Continue learning: $link`

	suspendedTemplate = `Hi $name,

Your enrollment in "$course" has been suspended because an installment is more than 60 days overdue.
Pay the outstanding installment to restore access: $link`

	frozenTemplate = `Hi $name,

Your enrollment in "$course" is frozen from $from until $until ($days days).
Freeze days left: $left`

	reminderTemplate = `Hi $name,

Installment $step of "$course" ($amount $currency) is due on $due.
Pay now: $link`

	absenceTemplate = `Hi $name,

We have not seen you since $last_seen. Your courses are waiting for you: $link`
)

// render substitutes $placeholders. Longer keys are replaced first so $name never
// eats into a longer key that starts the same way.
func render(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	pairs := make([]string, 0, len(vars)*2)
	for _, k := range keys {
		pairs = append(pairs, "$"+k, vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func scheduleLines(insts []models.Installment) string {
	if len(insts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nInstallments:\n")
	for _, inst := range insts {
		fmt.Fprintf(&b, "  %d. %s due %s [%s]\n", inst.Step, inst.Amount.StringFixed(2), inst.DueDate.Format(time.DateOnly), inst.Status)
	}
	return b.String()
}

func (d *Dispatcher) courseLink(course *models.Course) string {
	return fmt.Sprintf("%s/courses/%s", d.appURL, course.Slug)
}

// ConfirmationMessage is sent after a payment is captured
func (d *Dispatcher) ConfirmationMessage(user *models.User, course *models.Course, payment *models.Payment, progress decimal.Decimal, insts []models.Installment) Message {
	return Message{
		UserID:  user.ID,
		Kind:    KindConfirmation,
		Subject: fmt.Sprintf("You're enrolled in %s", course.Title),
		Body: render(confirmationTemplate, map[string]string{
			"name":     displayName(user),
			"amount":   payment.Amount.StringFixed(2),
			"currency": payment.Currency,
			"course":   course.Title,
			"progress": progress.StringFixed(2),
			"schedule": scheduleLines(insts),
			"link":     d.courseLink(course),
		}),
	}
}

func (d *Dispatcher) SuspendedMessage(user *models.User, course *models.Course) Message {
	return Message{
		UserID:  user.ID,
		Kind:    KindSuspended,
		Subject: fmt.Sprintf("Access to %s is suspended", course.Title),
		Body: render(suspendedTemplate, map[string]string{
			"name":   displayName(user),
			"course": course.Title,
			"link":   d.courseLink(course),
		}),
	}
}

func (d *Dispatcher) FrozenMessage(user *models.User, course *models.Course, enr *models.Enrollment) Message {
	vars := map[string]string{
		"name":   displayName(user),
		"course": course.Title,
		"left":   fmt.Sprint(enrollment.MaxFreezeDays - enr.FreezeDaysUsed),
	}
	if enr.FrozenStartedAt != nil && enr.FrozenUntil != nil {
		vars["from"] = enr.FrozenStartedAt.Format(time.DateOnly)
		vars["until"] = enr.FrozenUntil.Format(time.DateOnly)
		vars["days"] = fmt.Sprint(int(enr.FrozenUntil.Sub(*enr.FrozenStartedAt).Hours() / 24))
	}
	return Message{
		UserID:  user.ID,
		Kind:    KindFrozen,
		Subject: fmt.Sprintf("%s is frozen", course.Title),
		Body:    render(frozenTemplate, vars),
	}
}

func (d *Dispatcher) ReminderMessage(user *models.User, course *models.Course, inst *models.Installment) Message {
	return Message{
		UserID:  user.ID,
		Kind:    KindReminder,
		Subject: fmt.Sprintf("Installment %d of %s is due", inst.Step, course.Title),
		Body: render(reminderTemplate, map[string]string{
			"name":     displayName(user),
			"step":     fmt.Sprint(inst.Step),
			"course":   course.Title,
			"amount":   inst.Amount.StringFixed(2),
			"currency": course.Currency,
			"due":      inst.DueDate.Format(time.DateOnly),
			"link":     d.courseLink(course),
		}),
	}
}

func (d *Dispatcher) AbsenceMessage(user *models.User, lastSeen time.Time) Message {
	return Message{
		UserID:  user.ID,
		Kind:    KindAbsence,
		Subject: "We miss you",
		Body: render(absenceTemplate, map[string]string{
			"name":      displayName(user),
			"last_seen": lastSeen.Format(time.DateOnly),
			"link":      d.appURL + "/courses",
		}),
	}
}
