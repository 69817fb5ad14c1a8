package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"courseplatform_echo/internal/enrollment"
)

type LessonHandler struct {
	resolver *enrollment.Resolver
}

func NewLessonHandler(resolver *enrollment.Resolver) *LessonHandler {
	return &LessonHandler{resolver: resolver}
}

// Show returns a lesson the user may watch
func (h *LessonHandler) Show(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	ok, lesson, err := h.resolver.CanAccessLesson(c.Request().Context(), user.ID, id)
	if err != nil {
		return domainError(err)
	}
	if !ok {
		return domainError(enrollment.ErrNoAccess)
	}
	return c.JSON(http.StatusOK, lesson)
}

func (h *LessonHandler) Complete(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	view, err := h.resolver.CompleteLesson(c.Request().Context(), user.ID, id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, view)
}
