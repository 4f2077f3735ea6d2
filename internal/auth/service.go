// Package auth implements registration, login and token validation.
package auth

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/pkg/models"
)

// Service wires user persistence to token issuance.
type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

// RegisterRequest carries the role-tagged registration payload. Student
// registrations require the profile fields; instructor ones require an
// employee id.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`

	StudentID string `json:"studentId"`
	Course    string `json:"course"`
	YearLevel int    `json:"yearLevel"`
	Section   string `json:"section"`

	EmployeeID string `json:"employeeId"`
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResult is returned on successful register or login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register validates the payload, hashes the credential and persists the user.
func (s *Service) Register(req *RegisterRequest) (*AuthResult, error) {
	role := strings.ToLower(req.Role)
	switch role {
	case models.RoleStudent:
		if req.StudentID == "" || req.Course == "" || req.Section == "" {
			return nil, apperr.Validation("studentId, course and section are required for students")
		}
		if req.YearLevel < 1 || req.YearLevel > 4 {
			return nil, apperr.Validation("yearLevel must be between 1 and 4")
		}
	case models.RoleInstructor:
		if req.EmployeeID == "" {
			return nil, apperr.Validation("employeeId is required for instructors")
		}
	case models.RoleAdmin:
		// no extra profile fields
	default:
		return nil, apperr.Validation("role must be student, instructor or admin")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		Role:         role,
	}
	switch role {
	case models.RoleStudent:
		sid := req.StudentID
		user.StudentID = &sid
		user.Course = req.Course
		user.YearLevel = req.YearLevel
		user.Section = req.Section
	case models.RoleInstructor:
		eid := req.EmployeeID
		user.EmployeeID = &eid
	}

	if err := s.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("email or ID already registered")
		}
		return nil, apperr.Internal(err)
	}

	token, err := s.jwt.Generate(user.ID, user.Name, user.Email, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Login authenticates a credential pair.
func (s *Service) Login(req *LoginRequest) (*AuthResult, error) {
	var user models.User
	err := s.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Internal(err)
	}

	if err := VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	token, err := s.jwt.Generate(user.ID, user.Name, user.Email, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &AuthResult{Token: token, User: &user}, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

// ProfileUpdate is the PUT /auth/profile payload.
type ProfileUpdate struct {
	Name    string `json:"name"`
	Course  string `json:"course"`
	Section string `json:"section"`
}

// UpdateProfile mutates the caller's own profile fields.
func (s *Service) UpdateProfile(userID uint, patch *ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if patch.Name != "" {
		user.Name = patch.Name
	}
	if user.IsStudent() {
		if patch.Course != "" {
			user.Course = patch.Course
		}
		if patch.Section != "" {
			user.Section = patch.Section
		}
	}
	if err := s.db.Save(user).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// ValidateToken exposes token validation to the HTTP middleware.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.jwt.Validate(token)
}

// isUniqueViolation detects duplicate-key errors across postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
