package models

import (
	"time"

	"gorm.io/gorm"
)

// Run lifecycle statuses. Transitions are monotonic:
// pending -> running -> success|failed.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// MaxRunsUnlimited disables the per-zap run quota.
const MaxRunsUnlimited = -1

// User owns zaps and third-party connections.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Zaps        []Zap            `gorm:"foreignKey:UserID" json:"zaps,omitempty"`
	Connections []UserConnection `gorm:"foreignKey:UserID" json:"connections,omitempty"`
}

// UserConnection stores per-(user, provider) OAuth tokens. The engine only
// reads these at execution time; token acquisition happens elsewhere.
type UserConnection struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"uniqueIndex:idx_user_provider" json:"user_id"`
	Provider     string     `gorm:"uniqueIndex:idx_user_provider;not null" json:"provider"` // google, github
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// AvailableTrigger is the trigger-type catalog.
type AvailableTrigger struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

// AvailableAction is the action-type catalog.
type AvailableAction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

// Zap is a user-owned automation: one trigger plus an ordered action chain.
type Zap struct {
	ID          string `gorm:"primaryKey" json:"id"`
	UserID      uint   `gorm:"index;not null" json:"user_id"`
	Name        string `json:"name"`
	Description string `gorm:"type:text" json:"description"`
	// No gorm default tags here: a default tag makes GORM omit zero values
	// from the INSERT, silently turning maxRuns=0 into unlimited and
	// isActive=false into active. Callers set both explicitly.
	MaxRuns   int            `json:"max_runs"` // -1 = unlimited
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User    User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Trigger *Trigger `gorm:"foreignKey:ZapID" json:"trigger,omitempty"`
	Actions []Action `gorm:"foreignKey:ZapID" json:"actions,omitempty"`
	Runs    []ZapRun `gorm:"foreignKey:ZapID" json:"runs,omitempty"`
}

// Trigger belongs to exactly one zap. Payload is schemaless JSON holding both
// user configuration (cron, timezone) and small persisted state; for
// schedule triggers payload.scheduleId is the single source of truth for the
// live external schedule.
type Trigger struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ZapID     string    `gorm:"uniqueIndex;not null" json:"zap_id"`
	TypeID    uint      `gorm:"index" json:"type_id"`
	Payload   string    `gorm:"type:text" json:"payload"` // JSON object
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Zap  Zap              `gorm:"foreignKey:ZapID" json:"zap,omitempty"`
	Type AvailableTrigger `gorm:"foreignKey:TypeID" json:"type,omitempty"`
}

// Action is one step of a zap's chain. Ascending SortingOrder (ties broken by
// ID) defines execution sequence.
type Action struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ZapID        string    `gorm:"index;not null" json:"zap_id"`
	TypeID       uint      `gorm:"index" json:"type_id"`
	Metadata     string    `gorm:"type:text" json:"metadata"` // JSON object
	SortingOrder int       `gorm:"default:0" json:"sorting_order"`
	CreatedAt    time.Time `json:"created_at"`

	Zap  Zap             `gorm:"foreignKey:ZapID" json:"zap,omitempty"`
	Type AvailableAction `gorm:"foreignKey:TypeID" json:"type,omitempty"`
}

// ZapRun is one execution attempt of a zap. Metadata captures the triggering
// payload for audit/replay; Error holds the last action failure when status
// is failed.
type ZapRun struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	ZapID       string     `gorm:"index;not null" json:"zap_id"`
	Status      string     `gorm:"default:'pending';index" json:"status"`
	Metadata    string     `gorm:"type:text" json:"metadata"` // JSON object
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Zap Zap `gorm:"foreignKey:ZapID" json:"zap,omitempty"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &UserConnection{},
		&AvailableTrigger{}, &AvailableAction{},
		&Zap{}, &Trigger{}, &Action{}, &ZapRun{},
	}
}
