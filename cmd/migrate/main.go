package main

import (
	"fmt"
	"log"
	"os"

	"flowforge/internal/config"
	"flowforge/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_zap_runs_zap_created ON zap_runs(zap_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_zap_runs_status ON zap_runs(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_zaps_user_active ON zaps(user_id, is_active)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_actions_zap_order ON actions(zap_id, sorting_order)")
	log.Println("Additional indexes created successfully!")

	log.Println("Seeding trigger/action catalogs...")
	if err := models.SeedCatalogs(db); err != nil {
		log.Fatalf("Failed to seed catalogs: %v", err)
	}
	log.Println("Catalogs seeded successfully!")

	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	var demoUser models.User
	if err := db.Where("email = ?", "demo@flowforge.dev").First(&demoUser).Error; err != nil {
		demoUser = models.User{
			Email: "demo@flowforge.dev",
			Name:  "Demo User",
		}
		db.Create(&demoUser)
		log.Println("Created demo user")
	}
}
