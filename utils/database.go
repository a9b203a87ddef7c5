package utils

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/triplecrown/team-fundraising/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDatabase(host, user, password, dbname string, port int) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	// Log level depends on environment: production only records errors
	logLevel := logger.Info
	if os.Getenv("GO_ENV") == "production" {
		logLevel = logger.Error
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel: logLevel,
		},
	)

	var err error
	log.Printf("Attempting to connect to database: %s:%d/%s", host, port, dbname)

	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		log.Printf("Connection details: host=%s, port=%d, user=%s, dbname=%s", host, port, user, dbname)
		return err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("Failed to get database: %v", err)
		return err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(15)
	sqlDB.SetMaxOpenConns(120)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	return nil
}

// MigrateDatabase creates or updates the campaign, fundraiser and donation
// tables.
func MigrateDatabase() error {
	log.Println("Starting database migration...")
	if err := DB.AutoMigrate(
		&models.Campaign{},
		&models.Fundraiser{},
		&models.Donation{},
	); err != nil {
		return err
	}

	// Fold the previous system's free-text statuses ("", "pending") into
	// the created state so every row is covered by the enum.
	if err := DB.Model(&models.Donation{}).
		Where("payment_status IN ?", []string{"", "pending"}).
		Update("payment_status", models.StatusCreated).Error; err != nil {
		return err
	}

	log.Println("Database migration completed successfully!")
	return nil
}
