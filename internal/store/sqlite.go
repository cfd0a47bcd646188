package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly
)

const (
	kindPullRequest = "pr"
	kindIssue       = "issue"

	metaLastSuccessfulRefresh = "last_successful_refresh"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	kind                     TEXT    NOT NULL,
	server                   TEXT    NOT NULL,
	remote_id                INTEGER NOT NULL,
	url                      TEXT    NOT NULL DEFAULT '',
	web_url                  TEXT    NOT NULL DEFAULT '',
	number                   INTEGER NOT NULL DEFAULT 0,
	title                    TEXT    NOT NULL DEFAULT '',
	body                     TEXT    NOT NULL DEFAULT '',
	state                    TEXT    NOT NULL DEFAULT '',
	author_id                INTEGER NOT NULL DEFAULT 0,
	author_login             TEXT    NOT NULL DEFAULT '',
	author_avatar_url        TEXT    NOT NULL DEFAULT '',
	repo_full_name           TEXT    NOT NULL DEFAULT '',
	created_at               INTEGER NOT NULL DEFAULT 0,
	updated_at               INTEGER NOT NULL DEFAULT 0,
	condition                INTEGER NOT NULL DEFAULT 0,
	section                  INTEGER NOT NULL DEFAULT 0,
	total_comments           INTEGER NOT NULL DEFAULT 0,
	unread_comments          INTEGER NOT NULL DEFAULT 0,
	latest_read_comment_date INTEGER NOT NULL DEFAULT 0,
	created_by_me            INTEGER NOT NULL DEFAULT 0,
	assigned_to_me           INTEGER NOT NULL DEFAULT 0,
	is_new_assignment        INTEGER NOT NULL DEFAULT 0,
	reopened                 INTEGER NOT NULL DEFAULT 0,
	participated             INTEGER NOT NULL DEFAULT 0,
	mergeable                INTEGER NOT NULL DEFAULT 0,
	pinned                   INTEGER NOT NULL DEFAULT 0,
	head_sha                 TEXT    NOT NULL DEFAULT '',
	issue_comment_link       TEXT    NOT NULL DEFAULT '',
	review_comment_link      TEXT    NOT NULL DEFAULT '',
	statuses_link            TEXT    NOT NULL DEFAULT '',
	issue_url                TEXT    NOT NULL DEFAULT '',
	comments_link            TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (kind, server, remote_id)
);
CREATE TABLE IF NOT EXISTS labels (
	kind      TEXT    NOT NULL,
	server    TEXT    NOT NULL,
	remote_id INTEGER NOT NULL,
	position  INTEGER NOT NULL,
	name      TEXT    NOT NULL,
	color     TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS statuses (
	server      TEXT    NOT NULL,
	remote_id   INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	status_id   INTEGER NOT NULL DEFAULT 0,
	description TEXT    NOT NULL DEFAULT '',
	target_url  TEXT    NOT NULL DEFAULT '',
	state       TEXT    NOT NULL DEFAULT '',
	context     TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL DEFAULT 0
);
`

// SQLite persists models into a single database file. Post-sync actions are
// deliberately not part of the schema.
type SQLite struct {
	db *sql.DB
}

// buildSQLiteDSN creates a read-write WAL DSN for the given path.
func buildSQLiteDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenSQLite opens (and if needed creates) the database at dbPath.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	trimmed := strings.TrimSpace(dbPath)
	if trimmed == "" {
		return nil, fmt.Errorf("open sqlite store: empty path")
	}
	if dir := filepath.Dir(trimmed); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", buildSQLiteDSN(trimmed))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot with m inside one transaction.
func (s *SQLite) Save(ctx context.Context, m *Model) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"items", "labels", "statuses"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, pr := range m.AllPullRequests() {
		if err = insertItem(ctx, tx, kindPullRequest, pr.Base(), pr, nil); err != nil {
			return err
		}
		for i, st := range pr.Statuses {
			_, err = tx.ExecContext(ctx, `INSERT INTO statuses
				(server, remote_id, position, status_id, description, target_url, state, context, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pr.Server, pr.RemoteID, i, st.RemoteID, st.Description, st.TargetURL, st.State, st.Context, unixNano(st.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert status for %s: %w", pr.Key, err)
			}
		}
	}
	for _, issue := range m.AllIssues() {
		if err = insertItem(ctx, tx, kindIssue, issue.Base(), nil, issue); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastSuccessfulRefresh, fmt.Sprint(unixNano(m.LastSuccessfulRefresh)))
	if err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, kind string, it *domain.Item, pr *domain.PullRequest, issue *domain.Issue) error {
	var (
		mergeable    int
		pinned       bool
		commentsLink string
	)
	var headSHA, issueCommentLink, reviewLink, statusesLink, issURL string
	if pr != nil {
		mergeable = int(pr.Mergeable)
		pinned = pr.Pinned
		headSHA, issueCommentLink, reviewLink, statusesLink, issURL = pr.HeadSHA, pr.IssueCommentLink, pr.ReviewCommentLink, pr.StatusesLink, pr.IssueURL
	}
	if issue != nil {
		commentsLink = issue.CommentsLink
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO items (
		kind, server, remote_id, url, web_url, number, title, body, state,
		author_id, author_login, author_avatar_url, repo_full_name, created_at, updated_at,
		condition, section, total_comments, unread_comments, latest_read_comment_date,
		created_by_me, assigned_to_me, is_new_assignment, reopened, participated,
		mergeable, pinned, head_sha, issue_comment_link, review_comment_link, statuses_link, issue_url,
		comments_link
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kind, it.Server, it.RemoteID, it.URL, it.WebURL, it.Number, it.Title, it.Body, it.State,
		it.Author.ID, it.Author.Login, it.Author.AvatarURL, it.RepoFullName, unixNano(it.CreatedAt), unixNano(it.UpdatedAt),
		int(it.Condition), int(it.Section), it.TotalComments, it.UnreadComments, unixNano(it.LatestReadCommentDate),
		it.CreatedByMe, it.AssignedToMe, it.IsNewAssignment, it.Reopened, it.Participated,
		mergeable, pinned, headSHA, issueCommentLink, reviewLink, statusesLink, issURL,
		commentsLink,
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, it.Key, err)
	}
	for i, l := range it.Labels {
		_, err = tx.ExecContext(ctx, `INSERT INTO labels (kind, server, remote_id, position, name, color) VALUES (?, ?, ?, ?, ?, ?)`,
			kind, it.Server, it.RemoteID, i, l.Name, l.Color)
		if err != nil {
			return fmt.Errorf("insert label for %s: %w", it.Key, err)
		}
	}
	return nil
}

// Load reads the stored snapshot. Every item comes back with NoAction.
func (s *SQLite) Load(ctx context.Context) (*Model, error) {
	m := NewModel()

	rows, err := s.db.QueryContext(ctx, `SELECT
		kind, server, remote_id, url, web_url, number, title, body, state,
		author_id, author_login, author_avatar_url, repo_full_name, created_at, updated_at,
		condition, section, total_comments, unread_comments, latest_read_comment_date,
		created_by_me, assigned_to_me, is_new_assignment, reopened, participated,
		mergeable, pinned, head_sha, issue_comment_link, review_comment_link, statuses_link, issue_url,
		comments_link
		FROM items ORDER BY server, remote_id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			kind                                 string
			it                                   domain.Item
			created, updated, lastRead           int64
			condition, section, mergeable        int
			pinned                               bool
			headSHA, icl, rcl, sl, issURL, cLink string
		)
		scanErr := rows.Scan(
			&kind, &it.Server, &it.RemoteID, &it.URL, &it.WebURL, &it.Number, &it.Title, &it.Body, &it.State,
			&it.Author.ID, &it.Author.Login, &it.Author.AvatarURL, &it.RepoFullName, &created, &updated,
			&condition, &section, &it.TotalComments, &it.UnreadComments, &lastRead,
			&it.CreatedByMe, &it.AssignedToMe, &it.IsNewAssignment, &it.Reopened, &it.Participated,
			&mergeable, &pinned, &headSHA, &icl, &rcl, &sl, &issURL,
			&cLink,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan item: %w", scanErr)
		}
		it.CreatedAt, it.UpdatedAt, it.LatestReadCommentDate = fromUnixNano(created), fromUnixNano(updated), fromUnixNano(lastRead)
		it.Condition, it.Section = domain.Condition(condition), domain.Section(section)

		switch kind {
		case kindPullRequest:
			m.PullRequests[it.Key] = &domain.PullRequest{
				Item:              it,
				Mergeable:         domain.Tristate(mergeable),
				Pinned:            pinned,
				HeadSHA:           headSHA,
				IssueCommentLink:  icl,
				ReviewCommentLink: rcl,
				StatusesLink:      sl,
				IssueURL:          issURL,
			}
		case kindIssue:
			m.Issues[it.Key] = &domain.Issue{Item: it, CommentsLink: cLink}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	if err := s.loadLabels(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadStatuses(ctx, m); err != nil {
		return nil, err
	}

	var last int64
	err = s.db.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM meta WHERE key = ?`, metaLastSuccessfulRefresh).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("load meta: %w", err)
	default:
		m.LastSuccessfulRefresh = fromUnixNano(last)
	}
	return m, nil
}

func (s *SQLite) loadLabels(ctx context.Context, m *Model) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, server, remote_id, name, color FROM labels ORDER BY server, remote_id, position`)
	if err != nil {
		return fmt.Errorf("query labels: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			kind string
			key  domain.Key
			l    domain.Label
		)
		if err := rows.Scan(&kind, &key.Server, &key.RemoteID, &l.Name, &l.Color); err != nil {
			return fmt.Errorf("scan label: %w", err)
		}
		switch kind {
		case kindPullRequest:
			if pr, ok := m.PullRequests[key]; ok {
				pr.Labels = append(pr.Labels, l)
			}
		case kindIssue:
			if issue, ok := m.Issues[key]; ok {
				issue.Labels = append(issue.Labels, l)
			}
		}
	}
	return rows.Err()
}

func (s *SQLite) loadStatuses(ctx context.Context, m *Model) error {
	rows, err := s.db.QueryContext(ctx, `SELECT server, remote_id, status_id, description, target_url, state, context, created_at
		FROM statuses ORDER BY server, remote_id, position`)
	if err != nil {
		return fmt.Errorf("query statuses: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			key     domain.Key
			st      domain.Status
			created int64
		)
		if err := rows.Scan(&key.Server, &key.RemoteID, &st.RemoteID, &st.Description, &st.TargetURL, &st.State, &st.Context, &created); err != nil {
			return fmt.Errorf("scan status: %w", err)
		}
		st.CreatedAt = fromUnixNano(created)
		if pr, ok := m.PullRequests[key]; ok {
			pr.Statuses = append(pr.Statuses, st)
		}
	}
	return rows.Err()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
