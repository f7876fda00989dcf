// Package sink talks to the external spreadsheet that mirrors the report store.
//
// Every backend exposes the same small set of remote operations. Ranges use A1
// notation and always address the first worksheet of an object; rows are
// 1-based. Decorators add retry (WithRetry) and write quotas (WithRateLimit).
package sink

import (
	"context"
	"fmt"
)

// Object identifies a created spreadsheet
type Object struct {
	ID  string
	URL string
}

// Sink is the set of remote operations the sync engine relies on
type Sink interface {
	CreateObject(ctx context.Context, name, parent string) (Object, error)
	WriteHeader(ctx context.Context, id string, header []string) error
	ReadRange(ctx context.Context, id, a1 string) ([][]string, error)
	WriteRange(ctx context.Context, id, a1 string, rows [][]string) error
	// DeleteRows removes rows start..end inclusive; rows below move up
	DeleteRows(ctx context.Context, id string, start, end int) error
	// Rename sets the title of the data worksheet
	Rename(ctx context.Context, id, name string) error
}

// ColumnName converts a 1-based column number to its letter form (1 -> A, 27 -> AA)
func ColumnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

// RowRange returns the A1 range covering width columns of one row
func RowRange(row, width int) string {
	return fmt.Sprintf("A%d:%s%d", row, ColumnName(width), row)
}

// UsedRowsRange is the range read to count occupied rows
const UsedRowsRange = "A:A"
