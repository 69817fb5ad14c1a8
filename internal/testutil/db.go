// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/services"
)

// NewDB returns a migrated in-memory database private to the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(services.Models()...))
	return db
}

// CreateUser inserts a user whose password is password
func CreateUser(t *testing.T, db *gorm.DB, email, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Name:         email,
		Email:        email,
		PasswordHash: string(hash),
		UserType:     models.UserTypeStudent,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CourseOpts describes a fixture course
type CourseOpts struct {
	InstructorID *uint
	Price        string
	Installments int
	Parts        int
	// LessonsPerPart defaults to 1
	LessonsPerPart int
}

// CreateCourse inserts a course with Parts parts, each holding one chapter and topic
// with LessonsPerPart lessons. Parts are returned in order.
func CreateCourse(t *testing.T, db *gorm.DB, opts CourseOpts) *models.Course {
	t.Helper()

	if opts.Price == "" {
		opts.Price = "300.00"
	}
	if opts.LessonsPerPart == 0 {
		opts.LessonsPerPart = 1
	}

	var n int64
	db.Model(&models.Course{}).Unscoped().Count(&n)

	course := &models.Course{
		InstructorID:      opts.InstructorID,
		Title:             fmt.Sprintf("Course %d", n+1),
		Slug:              fmt.Sprintf("course-%d", n+1),
		Price:             decimal.RequireFromString(opts.Price),
		Currency:          "USD",
		AllowInstallments: opts.Installments > 1,
		InstallmentsCount: opts.Installments,
	}
	require.NoError(t, db.Create(course).Error)

	for i := 0; i < opts.Parts; i++ {
		part := models.CoursePart{CourseID: course.ID, Title: fmt.Sprintf("Part %d", i+1), OrderIndex: i + 1, IsActive: true}
		require.NoError(t, db.Create(&part).Error)

		chapter := models.Chapter{PartID: part.ID, Title: part.Title + " chapter"}
		require.NoError(t, db.Create(&chapter).Error)
		topic := models.Topic{ChapterID: chapter.ID, Title: part.Title + " topic"}
		require.NoError(t, db.Create(&topic).Error)

		for j := 0; j < opts.LessonsPerPart; j++ {
			lesson := models.Lesson{TopicID: topic.ID, Title: fmt.Sprintf("%s lesson %d", part.Title, j+1), OrderIndex: j + 1}
			require.NoError(t, db.Create(&lesson).Error)
			topic.Lessons = append(topic.Lessons, lesson)
		}
		chapter.Topics = []models.Topic{topic}
		part.Chapters = []models.Chapter{chapter}
		course.Parts = append(course.Parts, part)
	}
	return course
}

// FirstLesson returns the first lesson of the i-th fixture part
func FirstLesson(course *models.Course, i int) models.Lesson {
	return course.Parts[i].Chapters[0].Topics[0].Lessons[0]
}
