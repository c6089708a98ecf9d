package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AuditLog{},
		&models.Notification{},
		&models.CacheEntry{},
	)
}

const immutableLedgerMessage = "audit log entries are immutable"

// InstallAuditTriggers adds database level guards rejecting UPDATE and DELETE on
// audit_logs, covering raw SQL that bypasses the model hooks.
func InstallAuditTriggers(db *gorm.DB) error {
	var statements []string

	switch db.Dialector.Name() {
	case "sqlite":
		statements = []string{
			`CREATE TRIGGER IF NOT EXISTS trg_audit_logs_block_update
			BEFORE UPDATE ON audit_logs
			BEGIN SELECT RAISE(ABORT, '` + immutableLedgerMessage + `'); END;`,
			`CREATE TRIGGER IF NOT EXISTS trg_audit_logs_block_delete
			BEFORE DELETE ON audit_logs
			BEGIN SELECT RAISE(ABORT, '` + immutableLedgerMessage + `'); END;`,
		}
	case "postgres":
		statements = []string{
			`CREATE OR REPLACE FUNCTION audit_logs_block_mutation() RETURNS trigger AS $$
			BEGIN
				RAISE EXCEPTION '` + immutableLedgerMessage + `';
			END;
			$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS trg_audit_logs_block_update ON audit_logs`,
			`CREATE TRIGGER trg_audit_logs_block_update BEFORE UPDATE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION audit_logs_block_mutation()`,
			`DROP TRIGGER IF EXISTS trg_audit_logs_block_delete ON audit_logs`,
			`CREATE TRIGGER trg_audit_logs_block_delete BEFORE DELETE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION audit_logs_block_mutation()`,
		}
	case "mysql":
		statements = []string{
			`DROP TRIGGER IF EXISTS trg_audit_logs_block_update`,
			`CREATE TRIGGER trg_audit_logs_block_update BEFORE UPDATE ON audit_logs
			FOR EACH ROW SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '` + immutableLedgerMessage + `'`,
			`DROP TRIGGER IF EXISTS trg_audit_logs_block_delete`,
			`CREATE TRIGGER trg_audit_logs_block_delete BEFORE DELETE ON audit_logs
			FOR EACH ROW SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '` + immutableLedgerMessage + `'`,
		}
	default:
		return fmt.Errorf("audit triggers: unsupported dialect %q", db.Dialector.Name())
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
