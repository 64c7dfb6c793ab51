// Package sqlite implements the knowledge/constraint/feedback store
// ports on top of mattn/go-sqlite3. Embeddings are stored as BLOBs of
// little-endian float32 and L2-normalized on insert, so similarity
// search reduces to a dot product computed in Go after a repo_id
// filtered scan — no vector extension is required.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) a SQLite database at the given path.
// Use ":memory:" for an ephemeral database, primarily for tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		UNIQUE(repo_id, file_path, chunk_index)
	);

	CREATE TABLE IF NOT EXISTS learned_constraints (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL,
		violation_reason TEXT NOT NULL,
		code_pattern TEXT NOT NULL,
		user_reason TEXT,
		embedding BLOB NOT NULL,
		confidence_score REAL NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS feedback_records (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL DEFAULT '',
		review_id TEXT NOT NULL,
		comment_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT,
		developer_comment TEXT,
		final_code_snapshot TEXT,
		trace_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS precision_priors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id TEXT NOT NULL,
		category TEXT NOT NULL,
		alpha REAL NOT NULL DEFAULT 1.0,
		beta REAL NOT NULL DEFAULT 1.0,
		UNIQUE(repo_id, category)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_repo ON knowledge_chunks(repo_id);
	CREATE INDEX IF NOT EXISTS idx_constraints_repo ON learned_constraints(repo_id);
	CREATE INDEX IF NOT EXISTS idx_constraints_expires ON learned_constraints(expires_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_review ON feedback_records(review_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_repo_created ON feedback_records(repo_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_precision_repo_category ON precision_priors(repo_id, category);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- embedding encoding -----------------------------------------------

func encodeEmbedding(v []float32) []byte {
	normalized := normalize(v)
	buf := new(bytes.Buffer)
	buf.Grow(len(normalized) * 4)
	for _, f := range normalized {
		binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

func decodeEmbedding(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// dot computes the dot product of two equal-length, already
// L2-normalized vectors — equivalent to their cosine similarity.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// --- knowledge store ---------------------------------------------------

// UpsertChunks stores chunks keyed on (repo_id, file_path, chunk_index);
// re-indexing a file replaces its prior chunks for that index.
func (s *Store) UpsertChunks(ctx context.Context, repoID string, chunks []domain.KnowledgeChunk) error {
	if repoID == "" {
		return store.ErrRepoIsolationViolation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_chunks (id, repo_id, file_path, chunk_index, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, file_path, chunk_index) DO UPDATE SET
			id = excluded.id,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %s#%d: %w", c.FilePath, c.ChunkIndex, err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, repoID, c.FilePath, c.ChunkIndex, c.Content, encodeEmbedding(c.Embedding), metadataJSON, c.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("upsert chunk %s#%d: %w", c.FilePath, c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

// QuerySimilar scans every chunk belonging to repoID and returns the
// topK ranked by cosine similarity to embedding.
func (s *Store) QuerySimilar(ctx context.Context, repoID string, embedding []float32, topK int) ([]store.ScoredChunk, error) {
	if repoID == "" {
		return nil, store.ErrRepoIsolationViolation
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, file_path, chunk_index, content, embedding, metadata, created_at
		FROM knowledge_chunks WHERE repo_id = ?
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	query := normalize(embedding)
	var scored []store.ScoredChunk

	for rows.Next() {
		var c domain.KnowledgeChunk
		var embeddingBlob []byte
		var metadataJSON []byte
		var createdAt int64

		if err := rows.Scan(&c.ID, &c.RepoID, &c.FilePath, &c.ChunkIndex, &c.Content, &embeddingBlob, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(embeddingBlob)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for chunk %s: %w", c.ID, err)
			}
		}
		c.CreatedAt = time.Unix(createdAt, 0)

		scored = append(scored, store.ScoredChunk{Chunk: c, Score: dot(query, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// DeleteRepo removes every knowledge chunk and learned constraint
// belonging to repoID, used when a repository is unlinked or
// right-to-forget is invoked. Both tables share repo_id scoping, so a
// single call satisfies both store.KnowledgeStore and
// store.ConstraintStore.
func (s *Store) DeleteRepo(ctx context.Context, repoID string) error {
	if repoID == "" {
		return store.ErrRepoIsolationViolation
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("delete knowledge chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM learned_constraints WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("delete learned constraints: %w", err)
	}
	return nil
}

// CountChunks reports how many chunks are indexed for a repo.
func (s *Store) CountChunks(ctx context.Context, repoID string) (int, error) {
	if repoID == "" {
		return 0, store.ErrRepoIsolationViolation
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks WHERE repo_id = ?`, repoID).Scan(&count)
	return count, err
}

// --- constraint store ---------------------------------------------------

// SaveConstraint inserts a newly learned suppression constraint.
func (s *Store) SaveConstraint(ctx context.Context, c domain.LearnedConstraint) (domain.LearnedConstraint, error) {
	if c.RepoID == "" {
		return domain.LearnedConstraint{}, store.ErrRepoIsolationViolation
	}
	var expiresAt int64
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_constraints
			(id, repo_id, violation_reason, code_pattern, user_reason, embedding, confidence_score, expires_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.RepoID, c.ViolationReason, c.CodePattern, c.UserReason,
		encodeEmbedding(c.Embedding), c.ConfidenceScore, expiresAt, c.CreatedAt.Unix(), c.Version,
	)
	if err != nil {
		return domain.LearnedConstraint{}, fmt.Errorf("save constraint: %w", err)
	}
	return c, nil
}

// QuerySimilarConstraints returns every constraint for repoID whose
// cosine similarity to embedding is at least threshold, ranked
// descending. Expired constraints are excluded by the caller's clock
// via DeleteExpired running on its own schedule; this query does not
// filter on expiry so a stale-but-not-yet-swept row still suppresses.
func (s *Store) QuerySimilarConstraints(ctx context.Context, repoID string, embedding []float32, threshold float64) ([]store.ScoredConstraint, error) {
	if repoID == "" {
		return nil, store.ErrRepoIsolationViolation
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, violation_reason, code_pattern, user_reason, embedding, confidence_score, expires_at, created_at, version
		FROM learned_constraints WHERE repo_id = ?
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	query := normalize(embedding)
	var scored []store.ScoredConstraint

	for rows.Next() {
		var c domain.LearnedConstraint
		var embeddingBlob []byte
		var expiresAt, createdAt int64
		var userReason sql.NullString

		if err := rows.Scan(&c.ID, &c.RepoID, &c.ViolationReason, &c.CodePattern, &userReason,
			&embeddingBlob, &c.ConfidenceScore, &expiresAt, &createdAt, &c.Version); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		c.UserReason = userReason.String
		c.Embedding = decodeEmbedding(embeddingBlob)
		expiry := time.Unix(expiresAt, 0)
		c.ExpiresAt = &expiry
		c.CreatedAt = time.Unix(createdAt, 0)

		score := dot(query, c.Embedding)
		if score >= threshold {
			scored = append(scored, store.ScoredConstraint{Constraint: c, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate constraints: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// ReinforceConstraint bumps a constraint's confidence score after it
// suppresses a finding the developer doesn't reinstate, per the
// reinforcement rule in domain.LearnedConstraint.Reinforce.
func (s *Store) ReinforceConstraint(ctx context.Context, id string) (domain.LearnedConstraint, error) {
	var c domain.LearnedConstraint
	var embeddingBlob []byte
	var expiresAt, createdAt int64
	var userReason sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, violation_reason, code_pattern, user_reason, embedding, confidence_score, expires_at, created_at, version
		FROM learned_constraints WHERE id = ?
	`, id).Scan(&c.ID, &c.RepoID, &c.ViolationReason, &c.CodePattern, &userReason,
		&embeddingBlob, &c.ConfidenceScore, &expiresAt, &createdAt, &c.Version)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.LearnedConstraint{}, fmt.Errorf("constraint not found: %s", id)
		}
		return domain.LearnedConstraint{}, fmt.Errorf("get constraint: %w", err)
	}
	c.UserReason = userReason.String
	c.Embedding = decodeEmbedding(embeddingBlob)
	expiry := time.Unix(expiresAt, 0)
	c.ExpiresAt = &expiry
	c.CreatedAt = time.Unix(createdAt, 0)

	reinforced := c.Reinforce()

	_, err = s.db.ExecContext(ctx, `
		UPDATE learned_constraints SET confidence_score = ?, version = ? WHERE id = ?
	`, reinforced.ConfidenceScore, reinforced.Version, id)
	if err != nil {
		return domain.LearnedConstraint{}, fmt.Errorf("update constraint: %w", err)
	}

	return reinforced, nil
}

// DeleteExpired removes every constraint whose expiry has passed as
// of now, returning the count removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM learned_constraints WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired constraints: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CountActive reports how many of repoID's learned constraints have
// not yet expired as of now.
func (s *Store) CountActive(ctx context.Context, repoID string, now time.Time) (int, error) {
	if repoID == "" {
		return 0, store.ErrRepoIsolationViolation
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learned_constraints WHERE repo_id = ? AND expires_at >= ?`,
		repoID, now.Unix(),
	).Scan(&count)
	return count, err
}

// --- feedback log ---------------------------------------------------

// RecordFeedback persists a developer's disposition on a review comment.
func (s *Store) RecordFeedback(ctx context.Context, f domain.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_records
			(id, repo_id, review_id, comment_id, user_id, action, reason, developer_comment, final_code_snapshot, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.ID, f.RepoID, f.ReviewID, f.CommentID, f.UserID, f.Action, f.Reason, f.DeveloperComment, f.FinalCodeSnapshot, f.TraceID, f.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// GetFeedbackByReview retrieves every feedback record for a review.
func (s *Store) GetFeedbackByReview(ctx context.Context, reviewID string) ([]domain.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, review_id, comment_id, user_id, action, reason, developer_comment, final_code_snapshot, trace_id, created_at
		FROM feedback_records WHERE review_id = ? ORDER BY created_at ASC
	`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var records []domain.FeedbackRecord
	for rows.Next() {
		var f domain.FeedbackRecord
		var createdAt int64
		var reason, comment, snapshot, traceID sql.NullString

		if err := rows.Scan(&f.ID, &f.RepoID, &f.ReviewID, &f.CommentID, &f.UserID, &f.Action, &reason, &comment, &snapshot, &traceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.Reason = domain.FeedbackReason(reason.String)
		f.DeveloperComment = comment.String
		f.FinalCodeSnapshot = snapshot.String
		f.TraceID = traceID.String
		f.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return records, nil
}

// GetPrecisionPrior returns the Beta prior for a repo/category pair,
// defaulting to the uniform prior (1, 1) when none exists yet.
func (s *Store) GetPrecisionPrior(ctx context.Context, repoID, category string) (store.PrecisionPrior, error) {
	var p store.PrecisionPrior
	p.RepoID, p.Category = repoID, category

	err := s.db.QueryRowContext(ctx, `
		SELECT alpha, beta FROM precision_priors WHERE repo_id = ? AND category = ?
	`, repoID, category).Scan(&p.Alpha, &p.Beta)
	if err == sql.ErrNoRows {
		p.Alpha, p.Beta = 1.0, 1.0
		return p, nil
	}
	if err != nil {
		return store.PrecisionPrior{}, fmt.Errorf("get precision prior: %w", err)
	}
	return p, nil
}

// UpdatePrecisionPrior folds newly observed accept/reject counts into
// the repo/category Beta prior.
func (s *Store) UpdatePrecisionPrior(ctx context.Context, repoID, category string, accepted, rejected int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO precision_priors (repo_id, category, alpha, beta)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_id, category) DO UPDATE SET
			alpha = alpha + excluded.alpha - 1.0,
			beta = beta + excluded.beta - 1.0
	`, repoID, category, 1.0+float64(accepted), 1.0+float64(rejected))
	if err != nil {
		return fmt.Errorf("update precision prior: %w", err)
	}
	return nil
}

// DeleteOlderThan removes feedback records created before cutoff, per
// the feedback retention policy.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM feedback_records WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete old feedback: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CountFeedbackSince returns the total and rejected feedback counts for
// repoID recorded at or after since, the input to the per-repo
// false-positive-reduction gauge.
func (s *Store) CountFeedbackSince(ctx context.Context, repoID string, since time.Time) (total, rejected int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0)
		FROM feedback_records WHERE repo_id = ? AND created_at >= ?
	`, domain.FeedbackRejected, repoID, since.Unix()).Scan(&total, &rejected)
	if err != nil {
		return 0, 0, fmt.Errorf("count feedback since: %w", err)
	}
	return total, rejected, nil
}

// ListRepoIDs returns every distinct repo_id with at least one
// knowledge chunk or learned constraint on record, for the scheduler's
// per-repo metric aggregation pass.
func (s *Store) ListRepoIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id FROM knowledge_chunks
		UNION
		SELECT repo_id FROM learned_constraints
	`)
	if err != nil {
		return nil, fmt.Errorf("list repo ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan repo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
