package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/greenaudit/greenwash_backend/utils"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// insertError reports a unique index violation as ErrConflict; a concurrent registration can
// pass the lookup and still lose the insert.
func insertError(err error, what string) error {
	if isDuplicateKeyErr(err) {
		return utils.Wrap(utils.ErrConflict, err, what+" already registered")
	}
	return err
}
