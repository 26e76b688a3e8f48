package store

import (
	"errors"
	"io"
	"log"
	"os"
	"time"

	"github.com/simonsobs/soauth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// New opens the database and migrates every table.
func New(driver, dsn string) (*Store, error) {
	d, err := lookupDriver(driver)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d.Open(dsn), &gorm.Config{
		Logger: newGormLogger(os.Stdout),
	})
	if err != nil {
		return nil, err
	}

	if d.SingleWriter {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.App{},
		&models.Group{},
		&models.GroupMembership{},
		&models.RefreshRecord{},
		&models.LoginRequest{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// newGormLogger logs slow queries and real failures. Lookups that find
// nothing are expected and stay quiet.
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM database connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// RunInTransaction runs fn against a Store bound to a single transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
// Inside fn, only the tx store may be used.
func (s *Store) RunInTransaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// notFound maps gorm's not found error onto ErrRecordNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// first loads a single row matching query into dest.
func (s *Store) first(dest any, query string, args ...any) error {
	if err := s.db.Where(query, args...).First(dest).Error; err != nil {
		return notFound(err)
	}
	return nil
}
