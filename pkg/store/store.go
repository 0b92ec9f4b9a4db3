// Package store persists the activity and threat tables as CSV files.
//
// The two tables are independent: nothing enforces that a threat row's
// user_id still exists in the activity table after either file is
// regenerated. I/O errors surface to the caller unmodified (wrapped with
// %w); malformed cell contents surface as *MalformedInputError.
package store

import (
	"errors"
	"fmt"
)

// MalformedInputError reports a required column that is missing or a cell
// that failed numeric parsing.
type MalformedInputError struct {
	Table  string
	Column string
	// Row is the 1-based data row, 0 when the header itself is at fault.
	Row int
	Err error
}

func (e *MalformedInputError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("store: table %s: column %q: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("store: table %s: row %d, column %q: %v", e.Table, e.Row, e.Column, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

var errMissingColumn = errors.New("required column missing")

// columnIndex maps a header row to column positions, verifying every
// required column is present.
func columnIndex(table string, header, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, &MalformedInputError{Table: table, Column: name, Err: errMissingColumn}
		}
	}
	return idx, nil
}
