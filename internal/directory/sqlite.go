package directory

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SQLiteDirectory reads display names from the ERP operators master-data
// table. The workflow core treats that table as read-only.
type SQLiteDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDirectory creates a directory backed by the operators table
func NewSQLiteDirectory(db *sql.DB, logger *zap.Logger) *SQLiteDirectory {
	return &SQLiteDirectory{
		db:     db,
		logger: logger,
	}
}

// Resolve implements Directory. An operator missing from master data resolves
// to its id; the snapshot then still identifies the participant.
func (d *SQLiteDirectory) Resolve(ctx context.Context, operatorID string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		`SELECT display_name FROM operators WHERE id = ?`, operatorID).Scan(&name)
	if err == sql.ErrNoRows {
		d.logger.Warn("Operator missing from directory, using id as display name",
			zap.String("operator_id", operatorID))
		return operatorID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve operator %s: %w", operatorID, err)
	}
	return name, nil
}
