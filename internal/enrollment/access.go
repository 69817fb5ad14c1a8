package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

var ErrLessonNotFound = errors.New("lesson not found")

// Resolver answers content access and progress questions
type Resolver struct {
	db  *gorm.DB
	now func() time.Time
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db, now: time.Now}
}

// WithClock swaps the time source
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// CanAccessPart reports whether the user may open content in the given part
func (r *Resolver) CanAccessPart(ctx context.Context, userID uint, part *models.CoursePart) (bool, error) {
	db := r.db.WithContext(ctx)

	var enr models.Enrollment
	err := db.Where("user_id = ? AND course_id = ?", userID, part.CourseID).First(&enr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if !enr.IsActiveForAccess(DateOf(r.now())) {
		return false, nil
	}

	var rows []models.PartAccess
	if err := db.Where("enrollment_id = ?", enr.ID).Find(&rows).Error; err != nil {
		return false, fmt.Errorf("failed to load part access: %w", err)
	}
	if len(rows) == 0 {
		return true, nil
	}

	paid, err := PaidCount(db, enr.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count paid installments: %w", err)
	}
	for _, row := range rows {
		if row.PartID != part.ID {
			continue
		}
		// once unlocked a part stays unlocked
		return row.UnlockStep <= paid || row.UnlockedAt != nil, nil
	}
	return false, nil
}

// LessonPart loads a lesson together with the part that gates it
func (r *Resolver) LessonPart(ctx context.Context, lessonID uint) (*models.Lesson, *models.CoursePart, error) {
	var lesson models.Lesson
	err := r.db.WithContext(ctx).Preload("Topic.Chapter.Part").First(&lesson, lessonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if lesson.Topic == nil || lesson.Topic.Chapter == nil || lesson.Topic.Chapter.Part == nil {
		return nil, nil, ErrLessonNotFound
	}
	return &lesson, lesson.Topic.Chapter.Part, nil
}

// CanAccessLesson applies part gating. Free preview lessons are open to everyone.
func (r *Resolver) CanAccessLesson(ctx context.Context, userID, lessonID uint) (bool, *models.Lesson, error) {
	lesson, part, err := r.LessonPart(ctx, lessonID)
	if err != nil {
		return false, nil, err
	}
	if lesson.IsFreePreview {
		return true, lesson, nil
	}
	ok, err := r.CanAccessPart(ctx, userID, part)
	return ok, lesson, err
}

func (r *Resolver) courseLessonIDs(db *gorm.DB, courseID uint) *gorm.DB {
	return db.Model(&models.Lesson{}).
		Select("lessons.id").
		Joins("JOIN topics ON topics.id = lessons.topic_id AND topics.deleted_at IS NULL").
		Joins("JOIN chapters ON chapters.id = topics.chapter_id AND chapters.deleted_at IS NULL").
		Joins("JOIN course_parts ON course_parts.id = chapters.part_id AND course_parts.deleted_at IS NULL").
		Where("course_parts.course_id = ?", courseID)
}

// Progress is the share of the course's lessons the user completed, as a percentage
// with two decimals. It ignores access gating.
func (r *Resolver) Progress(ctx context.Context, userID, courseID uint) (decimal.Decimal, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := r.courseLessonIDs(db, courseID).Count(&total).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to count lessons: %w", err)
	}
	if total == 0 {
		return decimal.Zero, nil
	}

	var done int64
	err := db.Model(&models.LessonView{}).
		Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Where("lesson_id IN (?)", r.courseLessonIDs(r.db, courseID)).
		Count(&done).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to count completed lessons: %w", err)
	}

	return decimal.NewFromInt(done).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(2), nil
}

// CompleteLesson records that the user finished a lesson they can access
func (r *Resolver) CompleteLesson(ctx context.Context, userID, lessonID uint) (*models.LessonView, error) {
	ok, _, err := r.CanAccessLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAccess
	}

	db := r.db.WithContext(ctx)
	view := models.LessonView{UserID: userID, LessonID: lessonID}
	if err := db.Where(&view).FirstOrInit(&view).Error; err != nil {
		return nil, err
	}
	if view.ID != 0 {
		return &view, nil
	}
	view.CompletedAt = r.now()
	if err := db.Create(&view).Error; err != nil {
		return nil, fmt.Errorf("failed to record lesson view: %w", err)
	}
	return &view, nil
}

// PartState is one plan row as shown to the enrolled user
type PartState struct {
	PartID     uint       `json:"part_id"`
	Title      string     `json:"title"`
	UnlockStep int        `json:"unlock_step"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at"`
}

// Summary is the enrolled user's view of their enrollment
type Summary struct {
	Enrollment      models.Enrollment    `json:"enrollment"`
	ActiveForAccess bool                 `json:"active_for_access"`
	PaidCount       int                  `json:"paid_count"`
	NextDue         *models.Installment  `json:"next_due,omitempty"`
	Installments    []models.Installment `json:"installments"`
	Parts           []PartState          `json:"parts"`
	FreezeDaysLeft  int                  `json:"freeze_days_left"`
	ProgressPercent decimal.Decimal      `json:"progress_percent"`
}

// Summary collects schedule, plan, and progress for an enrollment the user owns
func (r *Resolver) Summary(ctx context.Context, userID, enrollmentID uint) (*Summary, error) {
	db := r.db.WithContext(ctx)

	var enr models.Enrollment
	err := db.Preload("Course").
		Preload("Installments", func(tx *gorm.DB) *gorm.DB { return tx.Order("step ASC") }).
		Preload("PartAccesses", func(tx *gorm.DB) *gorm.DB { return tx.Order("unlock_step ASC") }).
		Preload("PartAccesses.Part").
		Where("id = ? AND user_id = ?", enrollmentID, userID).
		First(&enr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}

	s := &Summary{
		ActiveForAccess: enr.IsActiveForAccess(DateOf(r.now())),
		Installments:    enr.Installments,
		FreezeDaysLeft:  MaxFreezeDays - enr.FreezeDaysUsed,
	}
	for i, inst := range enr.Installments {
		if inst.IsPaid() {
			s.PaidCount++
		} else if s.NextDue == nil {
			s.NextDue = &enr.Installments[i]
		}
	}
	for _, pa := range enr.PartAccesses {
		state := PartState{
			PartID:     pa.PartID,
			UnlockStep: pa.UnlockStep,
			Unlocked:   pa.UnlockStep <= s.PaidCount || pa.UnlockedAt != nil,
			UnlockedAt: pa.UnlockedAt,
		}
		if pa.Part != nil {
			state.Title = pa.Part.Title
		}
		s.Parts = append(s.Parts, state)
	}

	s.ProgressPercent, err = r.Progress(ctx, userID, enr.CourseID)
	if err != nil {
		return nil, err
	}

	enr.Installments = nil
	enr.PartAccesses = nil
	s.Enrollment = enr
	return s, nil
}
