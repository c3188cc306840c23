package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// User represents a row in the users table.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Organization represents a row in the organizations table.
type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// OrgMember links a user to an organization with a role.
type OrgMember struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Project represents a row in the projects table.
type Project struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// --- User operations ---

// CreateUser inserts a new user. The email must be unique; violations can be
// detected with IsUniqueViolation.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (User, error) {
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES (?, ?, ?, ?)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash, nullString(u.Name)).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	return u, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, created_at FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	return u, nil
}

// --- Organization operations ---

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	o := Organization{ID: uuid.NewString(), Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name) VALUES (?, ?) RETURNING created_at
	`, o.ID, o.Name).Scan(&o.CreatedAt)
	if err != nil {
		return Organization{}, err
	}
	return o, nil
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	o := &Organization{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM organizations WHERE id = ?
	`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AddOrgMember links a user to an organization with the given role.
func (s *Store) AddOrgMember(ctx context.Context, orgID, userID, role string) (OrgMember, error) {
	m := OrgMember{ID: uuid.NewString(), OrgID: orgID, UserID: userID, Role: role}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_members (id, org_id, user_id, role) VALUES (?, ?, ?, ?)
	`, m.ID, m.OrgID, m.UserID, m.Role)
	if err != nil {
		return OrgMember{}, err
	}
	return m, nil
}

// IsOrgMember reports whether the user belongs to the organization.
// Every ingestion-scoped request passes through this check.
func (s *Store) IsOrgMember(ctx context.Context, orgID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM org_members WHERE org_id = ? AND user_id = ?",
		orgID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListOrgsForUser returns all organizations the user is a member of.
func (s *Store) ListOrgsForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.created_at
		FROM organizations o
		JOIN org_members m ON m.org_id = o.id
		WHERE m.user_id = ?
		ORDER BY o.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// --- Project operations ---

// CreateProject inserts a new project under an organization. Project names
// are unique per organization; violations can be detected with
// IsUniqueViolation.
func (s *Store) CreateProject(ctx context.Context, orgID, name string) (Project, error) {
	p := Project{ID: uuid.NewString(), OrgID: orgID, Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, org_id, name) VALUES (?, ?, ?) RETURNING created_at
	`, p.ID, p.OrgID, p.Name).Scan(&p.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProjectInOrg retrieves a project only if it belongs to the given
// organization. Returns sql.ErrNoRows otherwise, which callers surface as
// not-found rather than leaking cross-tenant existence.
func (s *Store) GetProjectInOrg(ctx context.Context, projectID, orgID string) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, created_at FROM projects WHERE id = ? AND org_id = ?
	`, projectID, orgID).Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects returns all projects in an organization.
func (s *Store) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, created_at FROM projects WHERE org_id = ? ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
