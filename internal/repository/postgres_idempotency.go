package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresIdempotencyRepo PostgreSQL 幂等键台账实现
type PostgresIdempotencyRepo struct {
	db *sql.DB
}

// NewPostgresIdempotencyRepo 创建幂等键台账
func NewPostgresIdempotencyRepo(db *sql.DB) *PostgresIdempotencyRepo {
	return &PostgresIdempotencyRepo{db: db}
}

// 确保实现了接口
var _ IdempotencyRepo = (*PostgresIdempotencyRepo)(nil)

// CheckAndRecord 在事务内登记组合键 deviceID:token。
//
// 直接 INSERT，唯一约束冲突（23505）即为重复信号：两个并发请求携带
// 同一组合键时，只有先提交的事务插入成功，后者拿到 isNew=false。
// 注意冲突会使当前事务进入 aborted 状态，调用方拿到 isNew=false 后
// 必须回滚，不能再执行其他语句。
func (r *PostgresIdempotencyRepo) CheckAndRecord(ctx context.Context, tx *sql.Tx, deviceID, token string) (bool, error) {
	if token == "" {
		return true, nil
	}

	query := `INSERT INTO idempotency_keys (device_id, idem_key) VALUES ($1, $2)`

	combined := deviceID + ":" + token
	_, err := tx.ExecContext(ctx, query, deviceID, combined)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("failed to record idempotency key %s: %w", combined, err)
	}
	return true, nil
}
