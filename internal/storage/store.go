package storage

import (
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/lumen-collab/coderoom/internal/room"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomAccessRecord caches a room the user has entered, keyed by public uuid.
// It stands in for the browser's local storage in the original client: the
// authorized flag is advisory for local behavior only.
type RoomAccessRecord struct {
	UUID              string `gorm:"column:uuid;primaryKey;size:36;not null"`
	RoomID            int64  `gorm:"column:room_id;not null"`
	Title             string `gorm:"column:title;size:320;not null"`
	Authorized        bool   `gorm:"column:authorized;not null;default:false"`
	LastAccessSeconds int64  `gorm:"column:last_access_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RoomAccessRecord) TableName() string {
	return "room_access"
}

// VoteRecord is the local idempotency marker for an understanding-check
// vote, keyed by (room uuid, snapshot id). The server remains the final
// authority on duplicate prevention.
type VoteRecord struct {
	RoomUUID      string `gorm:"column:room_uuid;primaryKey;size:36;not null"`
	SnapshotID    int64  `gorm:"column:snapshot_id;primaryKey;not null"`
	VoteType      string `gorm:"column:vote_type;size:16;not null"`
	CastAtSeconds int64  `gorm:"column:cast_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VoteRecord) TableName() string {
	return "vote_markers"
}

// Store persists room access records and vote markers in a local SQLite file.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open establishes the SQLite connection and migrates the local schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RoomAccessRecord{}, &VoteRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("local store initialized", zap.String("path", path))
	}

	return &Store{db: db, clock: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRoomAccess upserts the access record for a room and stamps the access time.
func (s *Store) SaveRoomAccess(session room.Session) error {
	record := RoomAccessRecord{
		UUID:              session.UUID,
		RoomID:            session.RoomID,
		Title:             session.Title,
		Authorized:        session.Authorized,
		LastAccessSeconds: s.clock().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// RoomAccess returns the cached session for a room uuid, if present.
func (s *Store) RoomAccess(uuid string) (room.Session, bool, error) {
	var record RoomAccessRecord
	err := s.db.Where("uuid = ?", uuid).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return room.Session{}, false, nil
	}
	if err != nil {
		return room.Session{}, false, err
	}
	return room.Session{
		UUID:         record.UUID,
		RoomID:       record.RoomID,
		Title:        record.Title,
		Authorized:   record.Authorized,
		LastAccessed: time.Unix(record.LastAccessSeconds, 0).UTC(),
	}, true, nil
}

// HasAccess reports whether an authorized access record exists for the room.
func (s *Store) HasAccess(uuid string) (bool, error) {
	session, found, err := s.RoomAccess(uuid)
	if err != nil {
		return false, err
	}
	return found && session.Authorized, nil
}

// RecordVote persists the local idempotency marker for a cast vote.
func (s *Store) RecordVote(roomUUID string, snapshotID int64, voteType room.VoteType) error {
	record := VoteRecord{
		RoomUUID:      roomUUID,
		SnapshotID:    snapshotID,
		VoteType:      string(voteType),
		CastAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// Vote returns the previously cast vote for (room, snapshot), if any.
func (s *Store) Vote(roomUUID string, snapshotID int64) (room.VoteType, bool, error) {
	var record VoteRecord
	err := s.db.Where("room_uuid = ? AND snapshot_id = ?", roomUUID, snapshotID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return room.VoteType(record.VoteType), true, nil
}
