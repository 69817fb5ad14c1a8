package handlers

import (
	"github.com/labstack/echo/v4"
)

// Routes groups the API handlers
type Routes struct {
	Auth       *AuthHandler
	Course     *CourseHandler
	Payment    *PaymentHandler
	Enrollment *EnrollmentHandler
	Lesson     *LessonHandler
	Instructor *InstructorHandler
	Preference *UserPreferenceHandler
}

// Register mounts the public auth endpoints and, behind protect, everything else
func (r Routes) Register(e *echo.Echo, protect ...echo.MiddlewareFunc) {
	e.POST("/auth/login", r.Auth.HandleLogin)
	e.POST("/auth/logout", r.Auth.HandleLogout)

	api := e.Group("", protect...)
	api.GET("/me", r.Auth.Me)
	api.GET("/me/preferences", r.Preference.GetUserPreference)
	api.PUT("/me/preferences", r.Preference.UpdateUserPreference)

	api.GET("/courses/:id/quote", r.Course.Quote)
	api.POST("/courses/:id/checkout", r.Course.Checkout)

	api.GET("/payments/:ref/return", r.Payment.Return)
	api.GET("/payments/:ref/cancel", r.Payment.Cancel)

	api.GET("/enrollments/:id", r.Enrollment.Summary)
	api.POST("/enrollments/:id/freeze", r.Enrollment.Freeze)
	api.POST("/enrollments/:id/unfreeze", r.Enrollment.Unfreeze)

	api.GET("/lessons/:id", r.Lesson.Show)
	api.POST("/lessons/:id/complete", r.Lesson.Complete)

	api.PUT("/instructor/paypal", r.Instructor.UpdatePaypal)

	admin := api.Group("/admin")
	admin.POST("/enrollments", r.Enrollment.Enroll)
	admin.POST("/enrollments/:id/cancel", r.Enrollment.Cancel)
	admin.POST("/enrollments/:id/plan", r.Enrollment.RegeneratePlan)
	admin.POST("/payments/:id/bank-capture", r.Payment.BankCapture)
}
