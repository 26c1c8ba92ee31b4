package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"switchboard/config"
	"switchboard/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// Connect abre conexão com o DB configurado (sqlite3 por padrão) e, se
// database.automigrate estiver ligado, roda o Migrate.
func Connect(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case "postgres", "postgresql":
		logger.Info("connecting to postgresql", slog.String("host", cfg.Host), slog.String("dbname", cfg.Name))
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.Pass, sslmode)
		db, err = gorm.Open("postgres", dsn)
	default:
		logger.Info("connecting to sqlite3", slog.String("path", cfg.Path))
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open("sqlite3", cfg.Path)
		if err == nil {
			// sqlite aceita um escritor por vez; evita "database is locked"
			db.DB().SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.LogMode(cfg.LogMode)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Conversation{},
		&models.Message{},
		&models.SecurityEvent{},
		&models.OutboundDelivery{},
	).Error
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// uma única conversa aberta por (business_id, customer_identity), mesmo com várias instâncias
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uix_conversation_open_route
		ON conversations (business_id, customer_identity) WHERE status <> 'archived'`).Error
	if err != nil {
		return fmt.Errorf("create open route index: %w", err)
	}
	return nil
}
