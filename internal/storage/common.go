package storage

import (
	"database/sql"
	"errors"
)

var errNotFound = errors.New("not found")

var mapping = map[error]error{sql.ErrNoRows: errNotFound}

func wrapErr(err error) error {
	for k, v := range mapping {
		if errors.Is(err, k) {
			return v
		}
	}
	return err
}
