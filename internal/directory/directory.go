// Package directory resolves operator identifiers to display names. The
// engine consults it exactly once per decision record, when the row is
// created; historical records keep their snapshot and are never re-resolved.
package directory

import "context"

// Directory resolves an operator id to its current display name
type Directory interface {
	Resolve(ctx context.Context, operatorID string) (string, error)
}

// Static is a fixed in-memory directory, used in tests and for bootstrap
// setups without the operators master-data table.
type Static map[string]string

// Resolve implements Directory. Unknown operators resolve to their id so a
// missing master-data row never blocks an approval.
func (s Static) Resolve(_ context.Context, operatorID string) (string, error) {
	if name, ok := s[operatorID]; ok {
		return name, nil
	}
	return operatorID, nil
}
