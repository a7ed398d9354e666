package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrConflict は一意制約違反、または条件付き更新で他の書き込みに先を越されたことを表す。
// 呼び出し側はerrors.Isで判定し、その他のストレージエラーと区別する。
var ErrConflict = errors.New("unique constraint conflict")

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
