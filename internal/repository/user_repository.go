package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipforge/highlights-api/internal/models"
)

type UserRepository interface {
	CreateUser(tenantID, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUserByEmail(email string) (models.User, error)
	// GetUserByEmailAndTenant disambiguates users whose email exists in
	// more than one tenant (the magic-link flow).
	GetUserByEmailAndTenant(email, tenantID string) (models.User, error)
	ListUsersByTenant(tenantID string) ([]models.User, error)
	DeactivateUser(userID string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, email, first_name, last_name, password_hash, is_active, roles`

func (u *userRepository) CreateUser(tenantID, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleTenantMember}
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return models.User{}, errors.New("invalid roles")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		TenantID:     tenantID,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
	}

	const query = `
		INSERT INTO tenant.users (tenant_id, email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
	`
	err = u.db.QueryRow(query, user.TenantID, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsActive, pq.Array(rolesToStrings(user.Roles))).Scan(&user.ID)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(email, password string) (models.User, error) {
	user, err := u.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}
	return user, nil
}

func (u *userRepository) GetUserByEmail(email string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE email = $1 AND deleted_at IS NULL;
	`
	return scanUser(u.db.QueryRow(query, strings.ToLower(strings.TrimSpace(email))))
}

func (u *userRepository) GetUserByEmailAndTenant(email, tenantID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE email = $1 AND tenant_id = $2 AND deleted_at IS NULL;
	`
	return scanUser(u.db.QueryRow(query, strings.ToLower(strings.TrimSpace(email)), tenantID))
}

func (u *userRepository) ListUsersByTenant(tenantID string) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY email;
	`
	rows, err := u.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (u *userRepository) DeactivateUser(userID string) error {
	const query = `
		UPDATE tenant.users
		SET is_active = FALSE, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL;
	`
	result, err := u.db.Exec(query, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user  models.User
		roles pq.StringArray
	)
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&roles,
	)
	if err != nil {
		return models.User{}, err
	}
	user.Roles = models.EnsureDefaultRole(models.NormalizeRoles(stringsToRoles(roles)))
	if !models.IsValidRoleList(user.Roles) {
		return models.User{}, errors.New("user has invalid roles")
	}
	return user, nil
}

func rolesToStrings(roles []models.UserRole) []string {
	result := make([]string, 0, len(roles))
	for _, role := range roles {
		result = append(result, string(role))
	}
	return result
}

func stringsToRoles(roles []string) []models.UserRole {
	result := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		result = append(result, models.UserRole(role))
	}
	return result
}
