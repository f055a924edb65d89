package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"paperpulse/auth"
	"paperpulse/types"
)

// Storer is everything the handlers and the loader need from persistence.
type Storer interface {
	CreateUser(context.Context, types.User) error
	GetUserByUsername(context.Context, string) (*types.User, error)
	ListUsers(context.Context) ([]types.User, error)
	UpdateLastLogin(context.Context, string, time.Time) error

	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	DeleteDocument(context.Context, uuid.UUID) error
	SaveChunk(context.Context, types.Chunk) error
	DeleteChunksByDocID(context.Context, uuid.UUID) error
	Search(context.Context, []float32, int) ([]types.SearchHit, error)

	AppendAudit(context.Context, types.AuditEntry) error
	ListAudit(context.Context, int) ([]types.AuditEntry, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createTables(ctx); err != nil {
		return err
	}
	return p.seedUsers(ctx)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		hashed_password TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('Executive','Manager','Employee')),
		department TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_login TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		preview TEXT,
		source_path TEXT,
		pages INTEGER DEFAULT 0,
		department TEXT NOT NULL,
		access_roles TEXT[] NOT NULL,
		uploaded_by TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(768)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_documents_department ON documents(department);

	CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		ts TIMESTAMP WITH TIME ZONE NOT NULL,
		details JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

// seedUsers creates the default accounts on an empty users table so a
// fresh deployment is immediately usable.
func (p *PostgresStore) seedUsers(ctx context.Context) error {
	var count int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		username   string
		password   string
		role       types.Role
		department string
	}{
		{"admin", "admin123", types.RoleExecutive, "Management"},
		{"manager", "manager123", types.RoleManager, "HR"},
		{"employee", "employee123", types.RoleEmployee, "Support"},
	}

	for _, d := range defaults {
		hash, err := auth.HashPassword(d.password)
		if err != nil {
			return err
		}
		user := types.User{
			Username:       d.username,
			HashedPassword: hash,
			Role:           d.role,
			Department:     d.department,
			CreatedAt:      time.Now(),
		}
		if err := p.CreateUser(ctx, user); err != nil {
			return err
		}
		slog.Info("seeded default user", "username", d.username, "role", d.role)
	}
	return nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, user types.User) error {
	query := `INSERT INTO users (username, hashed_password, role, department, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := p.pool.Exec(ctx, query,
		user.Username,
		user.HashedPassword,
		string(user.Role),
		user.Department,
		user.CreatedAt,
		user.LastLogin,
	)
	return err
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT username, hashed_password, role, department, created_at, last_login FROM users WHERE username = $1",
		username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	user := &types.User{}
	var role string
	if err := rows.Scan(
		&user.Username,
		&user.HashedPassword,
		&role,
		&user.Department,
		&user.CreatedAt,
		&user.LastLogin); err != nil {
		return nil, err
	}
	user.Role = types.Role(role)
	return user, nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT username, role, department, created_at, last_login FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		var role string
		if err := rows.Scan(&user.Username, &role, &user.Department, &user.CreatedAt, &user.LastLogin); err != nil {
			return nil, err
		}
		user.Role = types.Role(role)
		users = append(users, user)
	}
	return users, rows.Err()
}

func (p *PostgresStore) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	_, err := p.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE username = $1", username, at)
	return err
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, title, preview, source_path, pages, department, access_roles, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			preview = EXCLUDED.preview,
			source_path = EXCLUDED.source_path,
			pages = EXCLUDED.pages,
			department = EXCLUDED.department,
			access_roles = EXCLUDED.access_roles,
			updated_at = EXCLUDED.updated_at
		`
	_, err := p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Preview,
		doc.SourcePath,
		doc.Pages,
		doc.Department,
		types.RolesToStrings(doc.AccessRoles),
		doc.UploadedBy,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, preview, source_path, pages, department, access_roles, uploaded_by, created_at, updated_at
		 FROM documents WHERE id = $1`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	doc := &types.Document{}
	var acl []string
	if err := rows.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Preview,
		&doc.SourcePath,
		&doc.Pages,
		&doc.Department,
		&acl,
		&doc.UploadedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt); err != nil {
		return nil, err
	}
	roles, err := types.ParseRoles(acl)
	if err != nil {
		return nil, err
	}
	doc.AccessRoles = roles
	return doc, nil
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", docID)
	return err
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

func (p *PostgresStore) SaveChunk(ctx context.Context, c types.Chunk) error {
	query := `
	INSERT INTO chunks (id, doc_id, position, content, embedding)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.pool.Exec(ctx, query,
		c.ID, c.DocID, c.Index, c.Content, pgvector.NewVector(c.Embedding),
	)
	return err
}

// Search returns the closest chunks by cosine distance joined with the
// document metadata the access filter needs. Callers over-fetch and
// filter; no role logic lives here.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.SearchHit, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	vector := pgvector.NewVector(queryVec)

	query := `
	SELECT pc.id, pc.doc_id, pc.position, pc.content,
	       doc.title, doc.department, doc.access_roles,
	       1-(pc.embedding <=> $1) as similarity
	FROM chunks pc
	JOIN documents doc ON pc.doc_id = doc.id
	WHERE pc.embedding IS NOT NULL
	ORDER BY pc.embedding <=> $1
	LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []types.SearchHit
	for rows.Next() {
		var hit types.SearchHit
		var acl []string
		err := rows.Scan(
			&hit.ID,
			&hit.DocID,
			&hit.Index,
			&hit.Content,
			&hit.Title,
			&hit.Department,
			&acl,
			&hit.Similarity)
		if err != nil {
			return nil, err
		}
		roles, err := types.ParseRoles(acl)
		if err != nil {
			return nil, err
		}
		hit.AccessRoles = roles

		log.Printf("[SEARCH] hit doc: %s, index: %d (similarity: %.4f)", hit.DocID, hit.Index, hit.Similarity)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (p *PostgresStore) AppendAudit(ctx context.Context, entry types.AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := p.pool.Exec(ctx,
		"INSERT INTO audit_log (username, role, action, ts, details) VALUES ($1, $2, $3, $4, $5)",
		entry.Username, string(entry.Role), entry.Action, entry.Timestamp, details)
	return err
}

func (p *PostgresStore) ListAudit(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		"SELECT id, username, role, action, ts, details FROM audit_log ORDER BY ts DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var entry types.AuditEntry
		var role string
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.Username, &role, &entry.Action, &entry.Timestamp, &details); err != nil {
			return nil, err
		}
		entry.Role = types.Role(role)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
