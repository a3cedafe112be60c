package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vipgate/internal/model"
)

// PostgresCardKeyRepo はPostgreSQLを使用したカードキーリポジトリ。
type PostgresCardKeyRepo struct {
	db *sql.DB
}

// NewPostgresCardKeyRepo はPostgresCardKeyRepoを生成する。
func NewPostgresCardKeyRepo(db *sql.DB) *PostgresCardKeyRepo {
	return &PostgresCardKeyRepo{db: db}
}

// Insert はカードキーを1枚保存する。
// コードの一意インデックスに違反した場合はErrDuplicateCodeを返す。
// 事前の存在チェックではなくINSERT自体の拒否で一意性を保証するため、
// 並行する発行処理の間でも同じコードが二重に保存されることはない。
func (r *PostgresCardKeyRepo) Insert(ctx context.Context, key *model.CardKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vip_keys (id, card_key, vip_level, days, lyrics_limit, music_limit, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.Code, key.Tier, key.Days, key.LyricsLimit, key.MusicLimit, key.Status, key.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to insert card key: %w", err)
	}
	return nil
}

// FindByCode は指定コードのカードキーを取得する。見つからない場合はnilを返す。
func (r *PostgresCardKeyRepo) FindByCode(ctx context.Context, code string) (*model.CardKey, error) {
	key := &model.CardKey{}
	var redeemedBy, redeemedHardwareID sql.NullString
	var redeemedAt, expireTime sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, card_key, vip_level, days, lyrics_limit, music_limit, status,
		        redeemed_by, redeemed_hardware_id, redeemed_at, expire_time, created_at
		 FROM vip_keys WHERE card_key = $1`,
		code,
	).Scan(&key.ID, &key.Code, &key.Tier, &key.Days, &key.LyricsLimit, &key.MusicLimit,
		&key.Status, &redeemedBy, &redeemedHardwareID, &redeemedAt, &expireTime, &key.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card key by code: %w", err)
	}

	key.RedeemedBy = redeemedBy.String
	key.RedeemedHardwareID = redeemedHardwareID.String
	if redeemedAt.Valid {
		key.RedeemedAt = &redeemedAt.Time
	}
	if expireTime.Valid {
		key.ExpireTime = &expireTime.Time
	}

	return key, nil
}

// CountByStatus は状態ごとのカードキー枚数を返す。
func (r *PostgresCardKeyRepo) CountByStatus(ctx context.Context) (map[model.KeyStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM vip_keys GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count card keys: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.KeyStatus]int)
	for rows.Next() {
		var status model.KeyStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan card key count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card key counts: %w", err)
	}

	return counts, nil
}

// compile-time interface check
var _ CardKeyRepository = (*PostgresCardKeyRepo)(nil)
