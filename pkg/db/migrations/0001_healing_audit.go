package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upHealingAudit, downHealingAudit)
}

// HealingAudit is the append-only record of every remediation transition.
type HealingAudit struct {
	ID           int64             `gorm:"type:bigserial;primaryKey" json:"id"`
	InvocationID uuid.UUID         `gorm:"type:uuid;not null;index" json:"invocation_id"`
	InstanceID   string            `gorm:"type:text;not null;index:idx_healing_audit_instance_at,priority:1" json:"instance_id"`
	Action       string            `gorm:"type:text;not null" json:"action"`
	Status       string            `gorm:"type:text;not null" json:"status"`
	Details      string            `gorm:"type:text" json:"details"`
	Meta         datatypes.JSONMap `gorm:"type:jsonb" json:"meta,omitempty"`
	At           time.Time         `gorm:"type:timestamptz;not null;default:now();index:idx_healing_audit_instance_at,priority:2,sort:desc" json:"at"`
}

func (HealingAudit) TableName() string { return "healing_audit" }

func openGorm(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upHealingAudit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(&HealingAudit{})
}

func downHealingAudit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&HealingAudit{})
}
