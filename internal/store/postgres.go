package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"writepad/internal/domain"
	"writepad/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO users (email, display_name, password_hash)
			VALUES (LOWER($1), $2, $3)
			RETURNING id, email, created_at
		`, user.Email, user.DisplayName, user.PasswordHash).Scan(&user.ID, &user.Email, &user.CreatedAt); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (id, username)
			VALUES ($1, $2)
		`, user.ID, user.DisplayName); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// EnsureUserByName backs the dev sign-in provider: it returns the user with
// the given display name, creating one with a placeholder email if needed.
func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, created_at FROM users
		WHERE display_name = $1 AND password_hash = ''
		ORDER BY created_at
		LIMIT 1
	`, name).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "."), ".")
	if slug == "" {
		slug = "author"
	}
	return s.CreateUser(ctx, User{
		DisplayName: name,
		Email:       slug + "+" + util.NewID("")[:8] + "@dev.writepad.local",
	})
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at FROM users WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, COALESCE(p.username, u.display_name), u.email, u.password_hash, u.created_at
		FROM users u
		LEFT JOIN profiles p ON p.id = u.id
		WHERE u.id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeleteUser removes the user; every owned row goes with it by cascade.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Sessions

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, COALESCE(p.username, u.display_name), u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		LEFT JOIN profiles p ON p.id = u.id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	if err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Profiles

const profileColumns = `id, username, avatar_url, bio, created_at`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Bio, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
}

// GetProfiles resolves many profiles in one query.
func (s *PostgresStore) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return []domain.Profile{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id::text = ANY($1) ORDER BY username`, ids)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Profile, 0, len(ids))
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error) {
	var out domain.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := patch.Apply(current)
		out, err = scanProfile(tx.QueryRowContext(ctx, `
			UPDATE profiles SET username=$2, avatar_url=$3, bio=$4
			WHERE id=$1
			RETURNING `+profileColumns, id, next.Username, next.AvatarURL, next.Bio))
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	return out, err
}

// Novels

const novelColumns = `n.id, n.owner_id, n.title, n.description, n.genre, n.cover_url, n.is_public, n.created_at`

func scanNovel(row rowScanner) (domain.Novel, error) {
	var n domain.Novel
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Description, &n.Genre, &n.CoverURL, &n.IsPublic, &n.CreatedAt)
	return n, err
}

func (s *PostgresStore) listNovels(ctx context.Context, query string, args ...any) ([]domain.Novel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Novel, 0)
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate novels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListNovelsByOwner(ctx context.Context, ownerID string) ([]domain.Novel, error) {
	return s.listNovels(ctx, `SELECT `+novelColumns+` FROM novels n WHERE n.owner_id=$1 ORDER BY n.created_at DESC`, ownerID)
}

func (s *PostgresStore) GetNovel(ctx context.Context, id string) (domain.Novel, error) {
	return scanNovel(s.db.QueryRowContext(ctx, `SELECT `+novelColumns+` FROM novels n WHERE n.id=$1`, id))
}

func (s *PostgresStore) InsertNovel(ctx context.Context, novel domain.Novel) (domain.Novel, error) {
	return scanNovel(s.db.QueryRowContext(ctx, `
		INSERT INTO novels AS n (owner_id, title, description, genre, cover_url, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+novelColumns,
		novel.OwnerID, novel.Title, novel.Description, novel.Genre, novel.CoverURL, novel.IsPublic))
}

// UpdateNovel applies mutate to the locked row and writes the result back.
func (s *PostgresStore) UpdateNovel(ctx context.Context, id string, mutate func(domain.Novel) (domain.Novel, error)) (domain.Novel, error) {
	var out domain.Novel
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanNovel(tx.QueryRowContext(ctx, `SELECT `+novelColumns+` FROM novels n WHERE n.id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		out, err = scanNovel(tx.QueryRowContext(ctx, `
			UPDATE novels AS n SET title=$2, description=$3, genre=$4, cover_url=$5, is_public=$6
			WHERE n.id=$1
			RETURNING `+novelColumns,
			id, next.Title, next.Description, next.Genre, next.CoverURL, next.IsPublic))
		if err != nil {
			return fmt.Errorf("update novel: %w", err)
		}
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteNovel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM novels WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete novel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Public reader

const authorColumns = `p.id, p.username, p.avatar_url, p.bio, p.created_at`

func scanPublicNovel(row rowScanner) (domain.PublicNovel, error) {
	var item domain.PublicNovel
	n := &item.Novel
	a := &item.Author
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Description, &n.Genre, &n.CoverURL, &n.IsPublic, &n.CreatedAt,
		&a.ID, &a.Username, &a.AvatarURL, &a.Bio, &a.CreatedAt)
	return item, err
}

func (s *PostgresStore) listPublicNovels(ctx context.Context, where, tail string, args ...any) ([]domain.PublicNovel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+novelColumns+`, `+authorColumns+`
		FROM novels n
		JOIN profiles p ON p.id = n.owner_id
		WHERE n.is_public AND `+where+`
		ORDER BY n.created_at DESC `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list public novels: %w", err)
	}
	defer rows.Close()

	items := make([]domain.PublicNovel, 0)
	for rows.Next() {
		item, err := scanPublicNovel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan public novel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public novels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPublicNovels(ctx context.Context, limit int) ([]domain.PublicNovel, error) {
	return s.listPublicNovels(ctx, `TRUE`, `LIMIT $1`, limit)
}

func (s *PostgresStore) ListPublicNovelsByIDs(ctx context.Context, ids []string) ([]domain.PublicNovel, error) {
	if len(ids) == 0 {
		return []domain.PublicNovel{}, nil
	}
	return s.listPublicNovels(ctx, `n.id::text = ANY($1)`, ``, ids)
}

func (s *PostgresStore) ListPublicNovelsByOwner(ctx context.Context, ownerID string) ([]domain.PublicNovel, error) {
	return s.listPublicNovels(ctx, `n.owner_id = $1`, ``, ownerID)
}

func (s *PostgresStore) GetPublicNovel(ctx context.Context, id string) (domain.PublicNovel, error) {
	return scanPublicNovel(s.db.QueryRowContext(ctx, `
		SELECT `+novelColumns+`, `+authorColumns+`
		FROM novels n
		JOIN profiles p ON p.id = n.owner_id
		WHERE n.id = $1 AND n.is_public`, id))
}

// Chapters

const chapterColumns = `c.id, c.novel_id, c.title, c.content, c."order", c.is_published, c.published_at, c.word_count, c.created_at, c.updated_at`

// liveChapter is the single definition of reader visibility. $2 is the
// server clock at query time.
const liveChapter = `c.is_published AND c.published_at IS NOT NULL AND c.published_at <= $2`

func scanChapter(row rowScanner) (domain.Chapter, error) {
	var c domain.Chapter
	var publishedAt sql.NullTime
	err := row.Scan(&c.ID, &c.NovelID, &c.Title, &c.Content, &c.Order, &c.IsPublished, &publishedAt, &c.WordCount, &c.CreatedAt, &c.UpdatedAt)
	if publishedAt.Valid {
		at := publishedAt.Time
		c.PublishedAt = &at
	}
	return c, err
}

func (s *PostgresStore) listChapters(ctx context.Context, q querier, query string, args ...any) ([]domain.Chapter, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Chapter, 0)
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return items, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) ListChapters(ctx context.Context, novelID string) ([]domain.Chapter, error) {
	return s.listChapters(ctx, s.db, `SELECT `+chapterColumns+` FROM chapters c WHERE c.novel_id=$1 ORDER BY c."order" ASC`, novelID)
}

func (s *PostgresStore) GetChapter(ctx context.Context, id string) (domain.Chapter, error) {
	return scanChapter(s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters c WHERE c.id=$1`, id))
}

// InsertChapter appends the chapter at order = current chapter count. The
// parent novel row is locked so concurrent appends serialize.
func (s *PostgresStore) InsertChapter(ctx context.Context, chapter domain.Chapter) (domain.Chapter, error) {
	var out domain.Chapter
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockNovel(ctx, tx, chapter.NovelID); err != nil {
			return err
		}
		var err error
		out, err = scanChapter(tx.QueryRowContext(ctx, `
			INSERT INTO chapters AS c (novel_id, title, content, "order", word_count)
			VALUES ($1, $2, $3, (SELECT COUNT(*) FROM chapters WHERE novel_id = $1), $4)
			RETURNING `+chapterColumns,
			chapter.NovelID, chapter.Title, chapter.Content, chapter.WordCount))
		if err != nil {
			return fmt.Errorf("insert chapter: %w", err)
		}
		return nil
	})
	return out, err
}

func (s *PostgresStore) UpdateChapter(ctx context.Context, id string, mutate func(domain.Chapter) (domain.Chapter, error)) (domain.Chapter, error) {
	var out domain.Chapter
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanChapter(tx.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters c WHERE c.id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		out, err = scanChapter(tx.QueryRowContext(ctx, `
			UPDATE chapters AS c
			SET title=$2, content=$3, "order"=$4, is_published=$5, published_at=$6, word_count=$7, updated_at=NOW()
			WHERE c.id=$1
			RETURNING `+chapterColumns,
			id, next.Title, next.Content, next.Order, next.IsPublished, nullTime(next.PublishedAt), next.WordCount))
		if err != nil {
			return fmt.Errorf("update chapter: %w", err)
		}
		return nil
	})
	return out, err
}

// DeleteChapter removes the chapter and closes the gap it leaves in the
// novel's order within the same transaction.
func (s *PostgresStore) DeleteChapter(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var novelID string
		if err := tx.QueryRowContext(ctx, `SELECT novel_id FROM chapters WHERE id=$1`, id).Scan(&novelID); err != nil {
			return err
		}
		if err := lockNovel(ctx, tx, novelID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE id=$1`, id); err != nil {
			return fmt.Errorf("delete chapter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE chapters c SET "order" = ranked.position, updated_at = NOW()
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY "order") - 1 AS position
				FROM chapters WHERE novel_id = $1
			) ranked
			WHERE c.id = ranked.id AND c."order" <> ranked.position
		`, novelID); err != nil {
			return fmt.Errorf("densify chapter order: %w", err)
		}
		return nil
	})
}

// ReorderChapters applies per-chapter order changes in one transaction.
// Uniqueness is checked at commit by the deferred constraint, so
// intermediate swaps are allowed; density is checked before commit.
func (s *PostgresStore) ReorderChapters(ctx context.Context, novelID string, changes []domain.OrderChange) ([]domain.Chapter, error) {
	var out []domain.Chapter
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockNovel(ctx, tx, novelID); err != nil {
			return err
		}
		for _, change := range changes {
			res, err := tx.ExecContext(ctx, `
				UPDATE chapters SET "order"=$3, updated_at=NOW()
				WHERE id=$1 AND novel_id=$2
			`, change.ID, novelID, change.Order)
			if err != nil {
				return fmt.Errorf("reorder chapter %s: %w", change.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return sql.ErrNoRows
			}
		}
		var count, distinct, maxOrder int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COUNT(DISTINCT "order"), COALESCE(MAX("order"), -1) FROM chapters WHERE novel_id=$1
		`, novelID).Scan(&count, &distinct, &maxOrder); err != nil {
			return fmt.Errorf("check chapter order: %w", err)
		}
		if distinct != count || maxOrder != count-1 {
			return ErrOrderNotDense
		}
		var err error
		out, err = s.listChapters(ctx, tx, `SELECT `+chapterColumns+` FROM chapters c WHERE c.novel_id=$1 ORDER BY c."order" ASC`, novelID)
		return err
	})
	return out, err
}

// ListLiveChapters returns the public table of contents of a public novel.
func (s *PostgresStore) ListLiveChapters(ctx context.Context, novelID string, asOf time.Time) ([]domain.Chapter, error) {
	return s.listChapters(ctx, s.db, `
		SELECT `+chapterColumns+`
		FROM chapters c
		JOIN novels n ON n.id = c.novel_id
		WHERE c.novel_id = $1 AND n.is_public AND `+liveChapter+`
		ORDER BY c."order" ASC`, novelID, asOf)
}

// GetLiveChapter returns sql.ErrNoRows for drafts and scheduled chapters.
func (s *PostgresStore) GetLiveChapter(ctx context.Context, id string, asOf time.Time) (domain.Chapter, error) {
	return scanChapter(s.db.QueryRowContext(ctx, `
		SELECT `+chapterColumns+`
		FROM chapters c
		JOIN novels n ON n.id = c.novel_id
		WHERE c.id = $1 AND n.is_public AND `+liveChapter, id, asOf))
}

func lockNovel(ctx context.Context, tx *sql.Tx, novelID string) error {
	var id string
	return tx.QueryRowContext(ctx, `SELECT id FROM novels WHERE id=$1 FOR UPDATE`, novelID).Scan(&id)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Lore

const loreColumns = `l.id, l.novel_id, l.title, l.type, l.description, l.created_at`

func scanLore(row rowScanner) (domain.LoreEntry, error) {
	var l domain.LoreEntry
	err := row.Scan(&l.ID, &l.NovelID, &l.Title, &l.Type, &l.Description, &l.CreatedAt)
	return l, err
}

func (s *PostgresStore) ListLore(ctx context.Context, novelID string) ([]domain.LoreEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loreColumns+` FROM lore_items l WHERE l.novel_id=$1 ORDER BY l.created_at DESC`, novelID)
	if err != nil {
		return nil, fmt.Errorf("list lore: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LoreEntry, 0)
	for rows.Next() {
		l, err := scanLore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lore: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lore: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLore(ctx context.Context, id string) (domain.LoreEntry, error) {
	return scanLore(s.db.QueryRowContext(ctx, `SELECT `+loreColumns+` FROM lore_items l WHERE l.id=$1`, id))
}

func (s *PostgresStore) InsertLore(ctx context.Context, entry domain.LoreEntry) (domain.LoreEntry, error) {
	return scanLore(s.db.QueryRowContext(ctx, `
		INSERT INTO lore_items AS l (novel_id, title, type, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+loreColumns,
		entry.NovelID, entry.Title, string(entry.Type), entry.Description))
}

func (s *PostgresStore) UpdateLore(ctx context.Context, id string, mutate func(domain.LoreEntry) (domain.LoreEntry, error)) (domain.LoreEntry, error) {
	var out domain.LoreEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanLore(tx.QueryRowContext(ctx, `SELECT `+loreColumns+` FROM lore_items l WHERE l.id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		out, err = scanLore(tx.QueryRowContext(ctx, `
			UPDATE lore_items AS l SET title=$2, type=$3, description=$4
			WHERE l.id=$1
			RETURNING `+loreColumns,
			id, next.Title, string(next.Type), next.Description))
		if err != nil {
			return fmt.Errorf("update lore: %w", err)
		}
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteLore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lore_items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete lore: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Messages

const messageColumns = `m.id, m.sender_id, m.recipient_id, m.content, m.is_read, m.created_at`

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.IsRead, &m.CreatedAt)
	return m, err
}

// ListMessages returns every message the user sent or received, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.sender_id = $1 OR m.recipient_id = $1
		ORDER BY m.created_at ASC, m.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		INSERT INTO messages AS m (sender_id, recipient_id, content)
		VALUES ($1, $2, $3)
		RETURNING `+messageColumns,
		msg.SenderID, msg.RecipientID, msg.Content))
}

// MarkRead flags every unread message from senderID to recipientID as read
// in one statement and returns how many rows changed.
func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, senderID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE recipient_id = $1 AND sender_id = $2 AND NOT is_read
	`, recipientID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
