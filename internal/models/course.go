package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course is a sellable course owned by an instructor
type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	InstructorID *uint  `gorm:"index" json:"instructor_id"`
	Title        string `gorm:"type:varchar(255)" json:"title"`
	Slug         string `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	Description  string `gorm:"type:text" json:"description"`

	Price             decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	Currency          string          `gorm:"type:varchar(8);default:'USD'" json:"currency"`
	AllowInstallments bool            `gorm:"default:false" json:"allow_installments"`
	InstallmentsCount int             `gorm:"default:1" json:"installments_count"`

	// Relationships
	Instructor *User        `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
	Parts      []CoursePart `gorm:"foreignKey:CourseID" json:"parts,omitempty"`
}

// BeforeSave keeps installments_count at 1 for courses sold in full only
func (c *Course) BeforeSave(tx *gorm.DB) error {
	if !c.AllowInstallments || c.InstallmentsCount < 1 {
		c.InstallmentsCount = 1
	}
	return nil
}

// UsesInstallments reports whether enrollments in this course get an installment schedule
func (c Course) UsesInstallments() bool {
	return c.AllowInstallments && c.InstallmentsCount > 1
}

// TaughtBy reports whether the course belongs to the given instructor
func (c Course) TaughtBy(userID uint) bool {
	return c.InstructorID != nil && *c.InstructorID == userID
}

// CoursePart is the unit content is gated by
type CoursePart struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CourseID   uint   `gorm:"index" json:"course_id"`
	Title      string `gorm:"type:varchar(255)" json:"title"`
	OrderIndex int    `gorm:"default:0" json:"order_index"`
	IsActive   bool   `gorm:"not null" json:"is_active"`

	Course   *Course   `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Chapters []Chapter `gorm:"foreignKey:PartID" json:"chapters,omitempty"`
}

type Chapter struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PartID     uint   `gorm:"index" json:"part_id"`
	Title      string `gorm:"type:varchar(255)" json:"title"`
	OrderIndex int    `gorm:"default:0" json:"order_index"`

	Part   *CoursePart `gorm:"foreignKey:PartID" json:"part,omitempty"`
	Topics []Topic     `gorm:"foreignKey:ChapterID" json:"topics,omitempty"`
}

type Topic struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ChapterID  uint   `gorm:"index" json:"chapter_id"`
	Title      string `gorm:"type:varchar(255)" json:"title"`
	OrderIndex int    `gorm:"default:0" json:"order_index"`

	Chapter *Chapter `gorm:"foreignKey:ChapterID" json:"chapter,omitempty"`
	Lessons []Lesson `gorm:"foreignKey:TopicID" json:"lessons,omitempty"`
}

// Lesson is a single video lesson. Free preview lessons are open to everyone.
type Lesson struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TopicID         uint   `gorm:"index" json:"topic_id"`
	Title           string `gorm:"type:varchar(255)" json:"title"`
	VideoURL        string `gorm:"type:text" json:"video_url"`
	IsFreePreview   bool   `gorm:"default:false" json:"is_free_preview"`
	DurationSeconds *int   `json:"duration_seconds"`
	OrderIndex      int    `gorm:"default:0" json:"order_index"`

	Topic *Topic `gorm:"foreignKey:TopicID" json:"topic,omitempty"`
}

// LessonView marks a lesson as completed by a user
type LessonView struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_lesson_views_user_lesson" json:"user_id"`
	LessonID    uint      `gorm:"uniqueIndex:idx_lesson_views_user_lesson" json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
}
