package middleware

import "courseplatform_echo/internal/models"

// Action is something only staff may do
type Action string

const (
	ActionEnroll             Action = "enroll"
	ActionCancelEnrollment   Action = "cancel_enrollment"
	ActionRegeneratePlan     Action = "regenerate_plan"
	ActionCaptureBank        Action = "capture_bank_transfer"
	ActionManageCourse       Action = "manage_course"
	ActionManageCoupon       Action = "manage_coupon"
	ActionSetPaypalAccount   Action = "set_paypal_account"
	ActionViewAnyEnrollments Action = "view_enrollments"
)

// instructorActions may be taken by instructors on what they own
var instructorActions = map[Action]bool{
	ActionEnroll:             true,
	ActionRegeneratePlan:     true,
	ActionManageCourse:       true,
	ActionManageCoupon:       true,
	ActionSetPaypalAccount:   true,
	ActionViewAnyEnrollments: true,
}

// Can decides whether user may take action on a resource owned by ownerID.
// Admins may do everything; instructors only act on their own courses and coupons.
func Can(user *models.User, action Action, ownerID *uint) bool {
	if user == nil {
		return false
	}
	switch user.UserType {
	case models.UserTypeAdmin:
		return true
	case models.UserTypeInstructor:
		return instructorActions[action] && ownerID != nil && *ownerID == user.ID
	default:
		return false
	}
}
