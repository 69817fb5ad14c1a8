package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ReasonError is an HTTP error with a machine readable reason code
type ReasonError struct {
	Code    int
	Reason  string
	Message string
}

func (e *ReasonError) Error() string {
	return e.Reason + ": " + e.Message
}

// CustomErrorHandler renders errors as JSON
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	resp := ErrorResponse{}

	var he *echo.HTTPError
	var ve *ValidationError
	var re *ReasonError
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		resp.Message = "The request could not be processed."
		resp.Fields = ve.Fields
	case errors.As(err, &re):
		code = re.Code
		resp.Message = re.Message
		resp.Reason = re.Reason
	case errors.As(err, &he):
		code = he.Code
		// echo fills a bare NewHTTPError with the status text; keep our defaults then
		if msg, ok := he.Message.(string); ok && msg != http.StatusText(he.Code) {
			resp.Message = msg
		}
	}

	switch code {
	case http.StatusNotFound:
		resp.Error = "Not Found"
		if resp.Message == "" {
			resp.Message = "The resource you're looking for doesn't exist."
		}
	case http.StatusForbidden:
		resp.Error = "Access Denied"
		if resp.Message == "" {
			resp.Message = "You don't have permission to access this resource."
		}
	case http.StatusUnauthorized:
		resp.Error = "Unauthorized"
		if resp.Message == "" {
			resp.Message = "Please log in to continue."
		}
	case http.StatusBadRequest:
		resp.Error = "Bad Request"
		if resp.Message == "" {
			resp.Message = "The request could not be processed."
		}
	case http.StatusConflict:
		resp.Error = "Conflict"
	case http.StatusUnprocessableEntity:
		resp.Error = "Unprocessable Entity"
	case http.StatusBadGateway:
		resp.Error = "Bad Gateway"
	default:
		resp.Error = http.StatusText(code)
		if resp.Message == "" {
			resp.Message = "Something went wrong. Please try again later."
		}
	}

	if code >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Request().URL.Path).Error("Request failed")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, resp)
	}
	if writeErr != nil {
		logrus.WithError(writeErr).Error("Failed to write error response")
	}
}
