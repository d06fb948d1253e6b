package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iWorld-y/paper_radar/internal/config"
	"github.com/iWorld-y/paper_radar/internal/model"
)

const maxTitleRunes = 255

// Storage newspaper_summary 表的读写
type Storage struct {
	db     *sql.DB
	driver string
}

// NewStorage 按配置连接数据库并建表
func NewStorage(ctx context.Context, cfg config.DBConfig) (*Storage, error) {
	var dsn string
	switch cfg.Driver {
	case "postgres":
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
	case "sqlite3":
		dsn = cfg.Path
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db, driver: cfg.Driver}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close 关闭数据库连接
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS newspaper_summary (
		id SERIAL PRIMARY KEY,
		newspaper VARCHAR(100) NOT NULL,
		date DATE NOT NULL,
		title VARCHAR(255) NOT NULL,
		summary TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (newspaper, date, title)
	)`
	if s.driver == "sqlite3" {
		query = `CREATE TABLE IF NOT EXISTS newspaper_summary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		newspaper TEXT NOT NULL,
		date TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (newspaper, date, title)
	)`
	}

	_, err := s.db.ExecContext(ctx, query)
	return err
}

const insertSQL = `INSERT INTO newspaper_summary (newspaper, date, title, summary)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (newspaper, date, title) DO NOTHING`

// Insert 写入一条摘要；(报纸, 日期, 标题) 已存在时返回 false 而不是报错
func (s *Storage) Insert(ctx context.Context, rec model.SummaryRecord) (bool, error) {
	args, err := insertArgs(rec)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(insertSQL), args...)
	if err != nil {
		return false, fmt.Errorf("insert summary %s: %w", rec, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertBatch 在一个事务内写入多条摘要，返回实际新增的条数
func (s *Storage) InsertBatch(ctx context.Context, recs []model.SummaryRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertSQL))
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, rerr)
		}
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range recs {
		args, err := insertArgs(rec)
		if err == nil {
			var res sql.Result
			if res, err = stmt.ExecContext(ctx, args...); err == nil {
				var n int64
				n, err = res.RowsAffected()
				inserted += int(n)
			}
		}
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: %v", err, rerr)
			}
			return 0, fmt.Errorf("insert summary %s: %w", rec, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Count 统计某份报纸某天已入库的条数
func (s *Storage) Count(ctx context.Context, newspaper, dateStr string) (int, error) {
	date, err := isoDate(dateStr)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM newspaper_summary WHERE newspaper = ? AND date = ?`),
		newspaper, date).Scan(&n)
	return n, err
}

// rebind 把 ? 占位符转换为 postgres 的 $n 形式
func (s *Storage) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func insertArgs(rec model.SummaryRecord) ([]any, error) {
	date, err := isoDate(rec.Date)
	if err != nil {
		return nil, err
	}
	return []any{
		clean(rec.Newspaper),
		date,
		truncateRunes(clean(rec.Title), maxTitleRunes),
		clean(rec.Summary),
	}, nil
}

// isoDate 20260228 -> 2026-02-28
func isoDate(yyyymmdd string) (string, error) {
	t, err := time.Parse("20060102", yyyymmdd)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", yyyymmdd, err)
	}
	return t.Format(time.DateOnly), nil
}

// clean 去掉无效 UTF-8 和 NULL 字符，PostgreSQL 文本字段不接受 NULL 字节
func clean(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
