package history

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"AgentWeave/deploy/migrations"
	xerrors "AgentWeave/internal/errors"
)

// MySQLRepository 使用 MySQL 归档任务执行记录。
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository 建立连接池并初始化数据表。
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	repo := &MySQLRepository{db: db}
	if err := repo.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// initSchema 按文件名顺序执行内嵌的 SQL 迁移。
func (r *MySQLRepository) initSchema() error {
	entries, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件失败")
	}
	sort.Strings(entries)
	for _, name := range entries {
		content, err := fs.ReadFile(migrations.Files, name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件 "+name+" 失败")
		}
		for _, stmt := range strings.Split(string(content), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := r.db.Exec(stmt); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移 "+name+" 失败")
			}
		}
	}
	return nil
}

// Save 插入一条执行记录。
func (r *MySQLRepository) Save(ctx context.Context, record Record) error {
	if record.TaskID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少任务标识")
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	const insert = `INSERT INTO task_executions
        (workflow_id, task_id, description, loop_index, output, last_error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, insert,
		record.WorkflowID,
		record.TaskID,
		record.Description,
		record.Loop,
		record.Output,
		record.Error,
		record.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行记录失败")
	}
	return nil
}

// ListLatest 返回最近的执行记录，按创建时间倒序排列。
func (r *MySQLRepository) ListLatest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	const query = `SELECT id, workflow_id, task_id, description, loop_index, output, last_error, created_at
        FROM task_executions ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var output, lastError sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.WorkflowID,
			&record.TaskID,
			&record.Description,
			&record.Loop,
			&output,
			&lastError,
			&record.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描执行记录失败")
		}
		record.Output = output.String
		record.Error = lastError.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历执行记录失败")
	}
	return records, nil
}

// Close 关闭数据库连接。
func (r *MySQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ Repository = (*MySQLRepository)(nil)
