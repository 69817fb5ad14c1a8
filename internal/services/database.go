package services

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"courseplatform_echo/internal/models"
)

// InitDB initializes the database connection with connection pooling
func InitDB(dsn string, verbose bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if verbose {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logrus.Info("Database connection established")
	return db, nil
}

// Models lists every table the application owns, in dependency order
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserNotifPreference{},
		&models.UserActivity{},
		&models.Course{},
		&models.CoursePart{},
		&models.Chapter{},
		&models.Topic{},
		&models.Lesson{},
		&models.LessonView{},
		&models.Coupon{},
		&models.Enrollment{},
		&models.Installment{},
		&models.PartAccess{},
		&models.Payment{},
		&models.PaymentCallbackHistory{},
		&models.ScheduledTask{},
		&models.ScheduledTaskHistory{},
	}
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}

	logrus.Info("Database migrations completed")
	return nil
}
