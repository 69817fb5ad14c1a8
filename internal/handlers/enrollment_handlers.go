package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/middleware"
	"courseplatform_echo/internal/models"
)

type EnrollmentHandler struct {
	db       *gorm.DB
	engine   *enrollment.Engine
	resolver *enrollment.Resolver
}

func NewEnrollmentHandler(db *gorm.DB, engine *enrollment.Engine, resolver *enrollment.Resolver) *EnrollmentHandler {
	return &EnrollmentHandler{db: db, engine: engine, resolver: resolver}
}

// Summary shows the user's enrollment with schedule, unlocked parts and progress
func (h *EnrollmentHandler) Summary(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	summary, err := h.resolver.Summary(c.Request().Context(), user.ID, id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *EnrollmentHandler) Freeze(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var body FreezeRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	enr, err := h.engine.Freeze(c.Request().Context(), enrollment.FreezeRequest{
		EnrollmentID: id,
		UserID:       user.ID,
		Days:         body.Days,
		Password:     body.Password,
	})
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, enr)
}

func (h *EnrollmentHandler) Unfreeze(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	enr, err := h.engine.Unfreeze(c.Request().Context(), id, user.ID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, enr)
}

// courseOwner returns the instructor id of a course, for capability checks
func (h *EnrollmentHandler) courseOwner(c echo.Context, courseID uint) (*uint, error) {
	var course models.Course
	err := h.db.WithContext(c.Request().Context()).Select("id", "instructor_id").First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "course not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	return course.InstructorID, nil
}

func (h *EnrollmentHandler) enrollmentOwner(c echo.Context, enrollmentID uint) (*uint, error) {
	var enr models.Enrollment
	err := h.db.WithContext(c.Request().Context()).Select("id", "course_id").First(&enr, enrollmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "enrollment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return h.courseOwner(c, enr.CourseID)
}

// Enroll gives a user access to a course without a payment
func (h *EnrollmentHandler) Enroll(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var body EnrollRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	owner, err := h.courseOwner(c, body.CourseID)
	if err != nil {
		return err
	}
	if !middleware.Can(user, middleware.ActionEnroll, owner) {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	enr, err := h.engine.Enroll(c.Request().Context(), body.UserID, body.CourseID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusCreated, enr)
}

func (h *EnrollmentHandler) Cancel(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var body CancelRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	owner, err := h.enrollmentOwner(c, id)
	if err != nil {
		return err
	}
	if !middleware.Can(user, middleware.ActionCancelEnrollment, owner) {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	enr, err := h.engine.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, enr)
}

// RegeneratePlan rebuilds the part unlock plan after the course outline changed
func (h *EnrollmentHandler) RegeneratePlan(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var body RegeneratePlanRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	owner, err := h.enrollmentOwner(c, id)
	if err != nil {
		return err
	}
	if !middleware.Can(user, middleware.ActionRegeneratePlan, owner) {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	created, err := h.engine.RegeneratePlan(c.Request().Context(), id, body.Overwrite)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"created": created})
}
