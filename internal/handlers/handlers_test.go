package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/middleware"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/pricing"
	"courseplatform_echo/internal/services"
	"courseplatform_echo/internal/testutil"
)

const testUserHeader = "X-Test-User"

// testAuth stands in for the firebase middleware: the user id comes from a header
func testAuth(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := strconv.ParseUint(c.Request().Header.Get(testUserHeader), 10, 32)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized)
			}
			var user models.User
			if err := db.First(&user, uint(id)).Error; err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized)
			}
			middleware.SetCurrentUser(c, &user)
			return next(c)
		}
	}
}

type apiEnv struct {
	db         *gorm.DB
	e          *echo.Echo
	engine     *enrollment.Engine
	student    *models.User
	admin      *models.User
	instructor *models.User
	// course is sold in 3 installments, fullCourse in one payment; both belong to instructor
	course     *models.Course
	fullCourse *models.Course
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db := testutil.NewDB(t)
	now := func() time.Time { return time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC) }

	engine := enrollment.NewEngine(db, nil).WithClock(now)
	resolver := enrollment.NewResolver(db).WithClock(now)
	pricer := pricing.NewEngine(db).WithClock(now)
	svc := checkout.NewService(db, nil, pricer, engine, nil, nil, checkout.Options{
		AppURL:      "https://courses.example.com",
		BankDetails: "IBAN XX00 1234",
	})
	box, err := services.NewSecretBox(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)

	env := &apiEnv{
		db:      db,
		e:       echo.New(),
		engine:  engine,
		student: testutil.CreateUser(t, db, "student@example.com", "secret-pass"),
		admin:   testutil.CreateUser(t, db, "admin@example.com", "pw"),
	}
	env.instructor = testutil.CreateUser(t, db, "instructor@example.com", "pw")
	require.NoError(t, db.Model(env.admin).Update("user_type", models.UserTypeAdmin).Error)
	require.NoError(t, db.Model(env.instructor).Update("user_type", models.UserTypeInstructor).Error)
	env.admin.UserType = models.UserTypeAdmin
	env.instructor.UserType = models.UserTypeInstructor

	env.course = testutil.CreateCourse(t, db, testutil.CourseOpts{InstructorID: &env.instructor.ID, Installments: 3, Parts: 3})
	env.fullCourse = testutil.CreateCourse(t, db, testutil.CourseOpts{InstructorID: &env.instructor.ID, Price: "120.00", Parts: 2})

	env.e.Validator = middleware.NewValidator()
	env.e.HTTPErrorHandler = middleware.CustomErrorHandler
	Routes{
		Auth:       NewAuthHandler(nil, false),
		Course:     NewCourseHandler(svc),
		Payment:    NewPaymentHandler(svc),
		Enrollment: NewEnrollmentHandler(db, engine, resolver),
		Lesson:     NewLessonHandler(resolver),
		Instructor: NewInstructorHandler(db, box),
		Preference: NewUserPreferenceHandler(db),
	}.Register(env.e, testAuth(db))
	return env
}

func (a *apiEnv) do(t *testing.T, method, path string, user *models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != nil {
		req.Header.Set(testUserHeader, fmt.Sprint(user.ID))
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRequiresUser(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[middleware.ErrorResponse](t, rec)
	assert.Equal(t, "Unauthorized", body.Error)
	assert.Equal(t, "Please log in to continue.", body.Message)
}

func TestQuote(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/courses/%d/quote?mode=installment", env.course.ID), env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[pricing.Quote](t, rec)
	assert.True(t, decimal.NewFromInt(100).Equal(quote.Final), quote.Final.String())

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/courses/%d/quote?mode=installment", env.fullCourse.ID), env.student, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/courses/999/quote", env.student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%d/checkout", env.course.ID), env.student, map[string]string{"mode": "weekly"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[middleware.ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "mode")

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/courses/%d/checkout", env.course.ID), env.student, map[string]string{"mode": "full", "method": "cash"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[middleware.ErrorResponse](t, rec).Fields, "method")
}

func TestBankTransferCheckoutAndCapture(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%d/checkout", env.fullCourse.ID), env.student, CheckoutRequest{
		Mode:   models.PaymentModeFull,
		Method: models.PaymentMethodBank,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[checkout.Result](t, rec)
	assert.Equal(t, "IBAN XX00 1234", result.BankDetails)
	assert.Empty(t, result.ApprovalURL)
	require.NotNil(t, result.Payment)
	assert.Equal(t, models.PaymentStatusCreated, result.Payment.Status)

	path := fmt.Sprintf("/admin/payments/%d/bank-capture", result.Payment.ID)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, env.student, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, env.instructor, nil).Code)

	rec = env.do(t, http.MethodPost, path, env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, checkout.OutcomeCaptured, decode[checkout.CaptureResult](t, rec).Outcome)

	rec = env.do(t, http.MethodPost, path, env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.OutcomeAlreadyCaptured, decode[checkout.CaptureResult](t, rec).Outcome)

	var enr models.Enrollment
	require.NoError(t, env.db.Where("user_id = ? AND course_id = ?", env.student.ID, env.fullCourse.ID).First(&enr).Error)
	assert.Equal(t, models.EnrollmentStatusActive, enr.Status)
}

func TestFreezeEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	enr, err := env.engine.Enroll(context.Background(), env.student.ID, env.course.ID)
	require.NoError(t, err)
	freeze := fmt.Sprintf("/enrollments/%d/freeze", enr.ID)

	rec := env.do(t, http.MethodPost, freeze, env.student, FreezeRequest{Days: 30, Password: "wrong"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, enrollment.ErrWrongPassword.Error(), decode[middleware.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodPost, freeze, env.student, FreezeRequest{Days: 91, Password: "secret-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, freeze, env.admin, FreezeRequest{Days: 30, Password: "pw"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "only the owner may freeze")

	rec = env.do(t, http.MethodPost, freeze, env.student, FreezeRequest{Days: 30, Password: "secret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	frozen := decode[models.Enrollment](t, rec)
	assert.Equal(t, models.EnrollmentStatusFrozen, frozen.Status)
	assert.Equal(t, 30, frozen.FreezeDaysUsed)

	rec = env.do(t, http.MethodPost, freeze, env.student, FreezeRequest{Days: 10, Password: "secret-pass"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already frozen")

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/enrollments/%d/unfreeze", enr.ID), env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.EnrollmentStatusActive, decode[models.Enrollment](t, rec).Status)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/enrollments/%d", enr.ID), env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[enrollment.Summary](t, rec)
	assert.Equal(t, 60, summary.FreezeDaysLeft)
	assert.Len(t, summary.Installments, 3)
	assert.Len(t, summary.Parts, 3)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/enrollments/%d", enr.ID), env.instructor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLessonAccess(t *testing.T) {
	env := newAPIEnv(t)
	lesson := testutil.FirstLesson(env.fullCourse, 0)
	path := fmt.Sprintf("/lessons/%d", lesson.ID)

	rec := env.do(t, http.MethodGet, path, env.student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path+"/complete", env.student, nil).Code)

	rec = env.do(t, http.MethodPost, "/admin/enrollments", env.admin, EnrollRequest{UserID: env.student.ID, CourseID: env.fullCourse.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, path, env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lesson.ID, decode[models.Lesson](t, rec).ID)

	rec = env.do(t, http.MethodPost, path+"/complete", env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, lesson.ID, decode[models.LessonView](t, rec).LessonID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/lessons/9999", env.student, nil).Code)
}

func TestOperatorCapabilities(t *testing.T) {
	env := newAPIEnv(t)
	other := testutil.CreateUser(t, env.db, "other-instructor@example.com", "pw")
	require.NoError(t, env.db.Model(other).Update("user_type", models.UserTypeInstructor).Error)

	body := EnrollRequest{UserID: env.student.ID, CourseID: env.course.ID}
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/admin/enrollments", env.student, body).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/admin/enrollments", other, body).Code)

	rec := env.do(t, http.MethodPost, "/admin/enrollments", env.instructor, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	enr := decode[models.Enrollment](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/admin/enrollments/%d/plan", enr.ID), env.instructor, RegeneratePlanRequest{Overwrite: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int{"created": 3}, decode[map[string]int](t, rec))

	cancel := fmt.Sprintf("/admin/enrollments/%d/cancel", enr.ID)
	rec = env.do(t, http.MethodPost, cancel, env.instructor, CancelRequest{Reason: "refund"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You don't have permission to access this resource.", decode[middleware.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodPost, cancel, env.admin, CancelRequest{Reason: "refund"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.EnrollmentStatusCancelled, decode[models.Enrollment](t, rec).Status)

	rec = env.do(t, http.MethodPost, cancel, env.admin, CancelRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreferences(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/me/preferences", env.student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.NotificationChannelEmail, decode[preferenceResponse](t, rec).Channel)

	rec = env.do(t, http.MethodPut, "/me/preferences", env.student, PreferenceRequest{Channel: models.NotificationChannelWhatsapp})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[middleware.ErrorResponse](t, rec).Fields, "whatsapp_number")

	rec = env.do(t, http.MethodPut, "/me/preferences", env.student, PreferenceRequest{Channel: models.NotificationChannelWhatsapp, WhatsappNumber: "628111"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/me/preferences", env.student, nil)
	pref := decode[preferenceResponse](t, rec)
	assert.Equal(t, models.NotificationChannelWhatsapp, pref.Channel)
	assert.Equal(t, "628111", pref.WhatsappNumber)

	rec = env.do(t, http.MethodPut, "/me/preferences", env.student, PreferenceRequest{Channel: models.NotificationChannelNone})
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.UserNotifPreference{}).Where("user_id = ?", env.student.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestInstructorPaypalCredentials(t *testing.T) {
	env := newAPIEnv(t)
	body := PaypalCredentialsRequest{ClientID: "instructor-app", Secret: "instructor-secret"}

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, "/instructor/paypal", env.student, body).Code)

	rec := env.do(t, http.MethodPut, "/instructor/paypal", env.instructor, PaypalCredentialsRequest{ClientID: "only-id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/instructor/paypal", env.instructor, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored models.User
	require.NoError(t, env.db.First(&stored, env.instructor.ID).Error)
	assert.Equal(t, "instructor-app", stored.PaypalClientID)
	assert.NotEmpty(t, stored.PaypalSecretEncrypted)
	assert.NotContains(t, stored.PaypalSecretEncrypted, "instructor-secret")
	assert.NotContains(t, rec.Body.String(), "instructor-secret")
}

func TestLoginWithoutFirebase(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/auth/login", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.SessionCookieName+"=;")
}
