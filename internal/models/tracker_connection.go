package models

import (
	"time"

	"github.com/jimdaga/capacity-planner/internal/crypto"
	"gorm.io/gorm"
)

var sealer *crypto.Sealer

// InitEncryption configures sealing of tracker access tokens.
// Must be called before any database operations involving TrackerConnection.
func InitEncryption(encryptionKey string) error {
	s, err := crypto.NewSealer(encryptionKey)
	if err != nil {
		return err
	}
	sealer = s
	return nil
}

// TrackerConnection links a user to an external task tracker whose completion
// events are reconciled into plan tasks.
type TrackerConnection struct {
	gorm.Model
	UserID       uint   `gorm:"not null;uniqueIndex:idx_tracker_connections_user_provider,where:deleted_at IS NULL"`
	Provider     string `gorm:"not null;uniqueIndex:idx_tracker_connections_user_provider,where:deleted_at IS NULL"` // e.g. "todoist"
	AccessToken  string `gorm:"type:text"`                                                                       // sealed at rest
	LastSyncedAt *time.Time
}

// BeforeSave seals the access token.
func (c *TrackerConnection) BeforeSave(tx *gorm.DB) error {
	if sealer == nil || c.AccessToken == "" {
		return nil
	}
	sealed, err := sealer.Seal(c.AccessToken)
	if err != nil {
		return err
	}
	c.AccessToken = sealed
	return nil
}

// AfterSave restores the plaintext token on the in-memory struct.
func (c *TrackerConnection) AfterSave(tx *gorm.DB) error {
	return c.open()
}

// AfterFind opens the sealed token after loading.
func (c *TrackerConnection) AfterFind(tx *gorm.DB) error {
	return c.open()
}

func (c *TrackerConnection) open() error {
	if sealer == nil || c.AccessToken == "" {
		return nil
	}
	plain, err := sealer.Open(c.AccessToken)
	if err != nil {
		return err
	}
	c.AccessToken = plain
	return nil
}
