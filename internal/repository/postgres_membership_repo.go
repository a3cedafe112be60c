package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vipgate/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用した会員権リポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// FindActiveByUserID は有効期限内の会員権を取得する。見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Membership, error) {
	return findActiveMembership(ctx, r.db, userID, now, false)
}

// queryRower はsql.DBとsql.Txの共通部分。
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// findActiveMembership は有効期限内の会員権を1行取得する。
// forUpdateがtrueの場合は行ロックを取得する（トランザクション内でのみ使用）。
func findActiveMembership(ctx context.Context, q queryRower, userID string, now time.Time, forUpdate bool) (*model.Membership, error) {
	query := `SELECT id, user_id, email, vip_level, total_lyrics_limit, total_music_limit,
	                 lyrics_used, music_used, activate_time, expire_time, last_check, last_used, last_activated_key
	          FROM members
	          WHERE user_id = $1 AND expire_time > $2
	          ORDER BY expire_time DESC LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	m := &model.Membership{}
	var lastCheck, lastUsed sql.NullTime
	var lastKey sql.NullString

	err := q.QueryRowContext(ctx, query, userID, now).Scan(
		&m.ID, &m.UserID, &m.Email, &m.Tier, &m.LyricsLimit, &m.MusicLimit,
		&m.LyricsUsed, &m.MusicUsed, &m.ActivatedAt, &m.ExpireTime,
		&lastCheck, &lastUsed, &lastKey,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active membership: %w", err)
	}

	if lastCheck.Valid {
		m.LastCheck = &lastCheck.Time
	}
	if lastUsed.Valid {
		m.LastUsed = &lastUsed.Time
	}
	m.LastActivatedKey = lastKey.String

	return m, nil
}

// Redeem はカードキーを会員権へマージし、キーをredeemedへ遷移させる。
//
// 同一ユーザーの並行有効化はユーザー行のロックで直列化し、有効な会員権行が
// 2行できることを防ぐ。キーの遷移は status = 'unredeemed' を条件とする
// UPDATEで行い、同一コードへの並行有効化では勝者が1人だけになる。
// 会員権の書き込みとキーの遷移は同一トランザクションでコミットされる。
func (r *PostgresMembershipRepo) Redeem(ctx context.Context, user *model.User, key *model.CardKey, hardwareID string, now time.Time) (*model.Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザー行をロックして同一ユーザーの有効化を直列化
	var lockedID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, user.ID,
	).Scan(&lockedID); err != nil {
		return nil, fmt.Errorf("failed to lock user row: %w", err)
	}

	existing, err := findActiveMembership(ctx, tx, user.ID, now, true)
	if err != nil {
		return nil, err
	}

	merged := model.MergeRedemption(existing, key, now)

	if existing == nil {
		merged.ID = uuid.New().String()
		merged.UserID = user.ID
		merged.Email = user.Email
		_, err = tx.ExecContext(ctx,
			`INSERT INTO members (id, user_id, email, vip_level, total_lyrics_limit, total_music_limit,
			                      lyrics_used, music_used, activate_time, expire_time, last_activated_key)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			merged.ID, merged.UserID, merged.Email, merged.Tier, merged.LyricsLimit, merged.MusicLimit,
			merged.LyricsUsed, merged.MusicUsed, merged.ActivatedAt, merged.ExpireTime, merged.LastActivatedKey,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE members SET vip_level = $1, total_lyrics_limit = $2, total_music_limit = $3,
			                    lyrics_used = $4, music_used = $5, expire_time = $6, last_activated_key = $7
			 WHERE id = $8`,
			merged.Tier, merged.LyricsLimit, merged.MusicLimit,
			merged.LyricsUsed, merged.MusicUsed, merged.ExpireTime, merged.LastActivatedKey, merged.ID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write membership: %w", err)
	}

	// exactly-once: unredeemedの行だけを遷移させる
	result, err := tx.ExecContext(ctx,
		`UPDATE vip_keys SET status = $1, redeemed_by = $2, redeemed_hardware_id = NULLIF($3, ''),
		                     redeemed_at = $4, expire_time = $5
		 WHERE id = $6 AND status = $7`,
		model.KeyStatusRedeemed, user.Email, hardwareID, now, merged.ExpireTime,
		key.ID, model.KeyStatusUnredeemed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark card key redeemed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// 別の有効化が先にコミットした。会員権の書き込みごとロールバックする。
		return nil, ErrKeyNotRedeemable
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &merged, nil
}

// ConsumeQuota は指定種別の使用済みカウンタを1増やし、利用ログを追記する。
// カウンタの増加は used < limit を条件に含む単一のUPDATEで行うため、
// 並行呼び出しがあってもusedがlimitを超えることはない。
func (r *PostgresMembershipRepo) ConsumeQuota(ctx context.Context, userID, email string, usageType model.UsageType, now time.Time) (int, error) {
	var usedCol, limitCol string
	switch usageType {
	case model.UsageLyrics:
		usedCol, limitCol = "lyrics_used", "total_lyrics_limit"
	case model.UsageMusic:
		usedCol, limitCol = "music_used", "total_music_limit"
	default:
		return 0, fmt.Errorf("unknown usage type: %s", usageType)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// カラム名は上のswitchで確定した固定文字列のみを埋め込む
	query := fmt.Sprintf(
		`UPDATE members SET %[1]s = %[1]s + 1, last_used = $1
		 WHERE id = (SELECT id FROM members WHERE user_id = $2 AND expire_time > $1
		             ORDER BY expire_time DESC LIMIT 1)
		   AND %[1]s < %[2]s
		 RETURNING %[2]s - %[1]s`, usedCol, limitCol)

	var remaining int
	err = tx.QueryRowContext(ctx, query, now, userID).Scan(&remaining)
	if err == sql.ErrNoRows {
		// 有効会員権がないのか上限到達なのかを区別する
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM members WHERE user_id = $1 AND expire_time > $2)`,
			userID, now,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check membership existence: %w", err)
		}
		if exists {
			return 0, ErrQuotaExhausted
		}
		return 0, ErrNoActiveMembership
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume quota: %w", err)
	}

	// 追記専用の利用ログ
	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_logs (id, user_id, email, action_type, action_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), userID, email, usageType, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert usage log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return remaining, nil
}

// TouchLastCheck は会員状態照会の最終時刻を記録する。
func (r *PostgresMembershipRepo) TouchLastCheck(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET last_check = $1 WHERE user_id = $2 AND expire_time > $1`,
		now, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch last check: %w", err)
	}
	return nil
}

// Count は会員権行の総数を返す（期限切れを含む）。
func (r *PostgresMembershipRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
