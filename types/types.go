package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the access-control level of a user. Roles form a strict
// hierarchy: Executive > Manager > Employee.
type Role string

const (
	RoleExecutive Role = "Executive"
	RoleManager   Role = "Manager"
	RoleEmployee  Role = "Employee"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleExecutive, RoleManager, RoleEmployee:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

func ParseRoles(ss []string) ([]Role, error) {
	roles := make([]Role, 0, len(ss))
	for _, s := range ss {
		role, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func RolesToStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

type User struct {
	Username       string     `json:"username"`
	HashedPassword string     `json:"-"`
	Role           Role       `json:"role"`
	Department     string     `json:"department"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

type Document struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Preview    string    `json:"preview"`
	SourcePath string    `json:"source_path,omitempty"`
	Pages      int       `json:"pages"`
	Department string    `json:"department"`
	// AccessRoles is the ACL assigned at upload time. Visibility is
	// decided by the rbac package, never by the store.
	AccessRoles []Role    `json:"access_roles"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	Index     int
	Content   string
	Embedding []float32
}

// SearchHit is a chunk returned from the vector index together with the
// document metadata needed for access filtering.
type SearchHit struct {
	Chunk
	Title       string
	Department  string
	AccessRoles []Role
	Similarity  float64
}

type SearchResult struct {
	DocID      string  `json:"document_id"`
	Title      string  `json:"title"`
	ChunkText  string  `json:"chunk"`
	Index      int     `json:"index"`
	Similarity float64 `json:"relevance_score"`
}

type ChatResponse struct {
	Answer     string    `json:"answer"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type Source struct {
	DocID     string `json:"document_id"`
	Title     string `json:"title"`
	ChunkText string `json:"chunk_text,omitempty"`
	Index     int    `json:"index"`
}

type AuditEntry struct {
	ID        int64          `json:"id,omitempty"`
	Username  string         `json:"user_id"`
	Role      Role           `json:"user_role"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Config drives the bulk loader pipeline.
type Config struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int
	ChunkOverlap   int
}
