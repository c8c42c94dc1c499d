package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Action string

const (
	ActionVersionize Action = "versionize"
	ActionPublish    Action = "publish"
	ActionDelete     Action = "delete"
)

type Severity int

const (
	SeverityMessage Severity = iota
	SeverityUserError
	SeveritySystemError
)

func (s Severity) String() string {
	switch s {
	case SeverityUserError:
		return "user_error"
	case SeveritySystemError:
		return "system_error"
	}
	return "message"
}

// Entry is one audit log line about a record operation.
type Entry struct {
	Table    string
	RecordID uint64
	Action   Action
	Severity Severity
	Message  string
	Params   map[string]any
	// ContainerID is the container page id, -1 when unknown
	ContainerID int64
	UserID      uint64
}

// Sink receives audit entries. The engine never fails on a sink error.
type Sink interface {
	Log(ctx context.Context, e Entry)
}

// LogRow is the persisted form of an audit entry.
type LogRow struct {
	ID          uint64
	RecordTable string `gorm:"column:table_name"`
	RecordID    uint64
	Action      string
	Severity    int
	Message     string
	Params      []byte `gorm:"type:jsonb"`
	ContainerID int64
	UserID      uint64
	CreatedAt   time.Time
}

func (LogRow) TableName() string { return "sys_log" }

// Logger writes entries to zerolog and mirrors them into the sys_log table.
type Logger struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewLogger(db *gorm.DB, log zerolog.Logger) *Logger {
	return &Logger{db: db, log: log}
}

func (l *Logger) Log(ctx context.Context, e Entry) {
	evt := l.log.Info()
	if e.Severity == SeverityUserError {
		evt = l.log.Warn()
	} else if e.Severity == SeveritySystemError {
		evt = l.log.Error()
	}
	evt.Str("table", e.Table).
		Uint64("record_id", e.RecordID).
		Str("action", string(e.Action)).
		Fields(map[string]any(e.Params)).
		Msg(e.Message)

	params, _ := json.Marshal(e.Params)
	row := LogRow{
		RecordTable: e.Table,
		RecordID:    e.RecordID,
		Action:      string(e.Action),
		Severity:    int(e.Severity),
		Message:     e.Message,
		Params:      params,
		ContainerID: e.ContainerID,
		UserID:      e.UserID,
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		l.log.Error().Err(err).Msg("failed to persist audit entry")
	}
}
