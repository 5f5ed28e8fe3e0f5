package history

import (
	"context"
	"fmt"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// messageRecord is the GORM model for one history entry.
type messageRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	RoomCode  string    `gorm:"size:8;not null;index:idx_messages_room_seq,priority:1"`
	Seq       uint64    `gorm:"not null;index:idx_messages_room_seq,priority:2"`
	Sender    string    `gorm:"size:100;not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for messageRecord.
func (messageRecord) TableName() string {
	return "messages"
}

func toRecord(msg domain.Message) messageRecord {
	return messageRecord{
		ID:        msg.ID,
		RoomCode:  msg.RoomCode,
		Seq:       msg.Seq,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
	}
}

func (r messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		RoomCode:  r.RoomCode,
		Seq:       r.Seq,
		Sender:    r.Sender,
		Content:   r.Content,
		Timestamp: r.CreatedAt,
	}
}

// OpenSQLite opens a SQLite database through GORM. SQLite allows one writer,
// so the pool is limited to a single connection; this also keeps ":memory:"
// databases shared across goroutines.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	if path == "" {
		path = "rooms.db"
	}
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// GormStore stores history in a SQL table through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the messages table and returns a store over db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append inserts msg. Re-appending a message with the same ID is ignored.
func (s *GormStore) Append(ctx context.Context, msg domain.Message) error {
	record := toRecord(msg)
	result := s.db.WithContext(ctx).Where("id = ?", record.ID).FirstOrCreate(&record)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListByRoom returns a room's messages ordered by sequence number.
func (s *GormStore) ListByRoom(ctx context.Context, code string) ([]domain.Message, error) {
	var records []messageRecord
	if err := s.db.WithContext(ctx).
		Where("room_code = ?", code).
		Order("seq ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]domain.Message, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DeleteRoom removes every message of a room.
func (s *GormStore) DeleteRoom(ctx context.Context, code string) error {
	if err := s.db.WithContext(ctx).
		Where("room_code = ?", code).
		Delete(&messageRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// Clear removes every stored message.
func (s *GormStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&messageRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
