package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UpdateProfileInput struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type UserService struct {
	users     repository.UserRepository
	passwords *PasswordValidator
	logger    *zap.Logger
}

func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, passwords: NewPasswordValidator(), logger: logger}
}

func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("user not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.ErrValidation.WithMessage("name must not be empty")
		}
		user.Name = name
	}
	if in.PhoneNumber != nil {
		phone := strings.TrimSpace(*in.PhoneNumber)
		if phone == "" {
			user.PhoneNumber = nil
		} else {
			user.PhoneNumber = &phone
		}
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new one and signs
// out every other session by revoking all refresh tokens.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.Password, current) {
		return apperrors.ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	if current == next {
		return apperrors.ErrValidation.WithMessage("new password must differ from the current one")
	}
	if err := s.passwords.ValidatePassword(next); err != nil {
		return apperrors.ErrValidation.WithMessage(err.Error())
	}

	hashed, err := HashPassword(next)
	if err != nil {
		return apperrors.ErrInternalServer.Wrap(err)
	}
	user.Password = hashed
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.ErrDatabaseQuery.Wrap(err)
	}
	if err := s.users.RevokeAllUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Error("Failed to revoke refresh tokens after password change", zap.Error(err))
	}
	return nil
}

func (s *UserService) List(ctx context.Context, page, limit int) (*UserPage, error) {
	page, limit = NormalizePage(page, limit)
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	if users == nil {
		users = []models.User{}
	}
	return &UserPage{Users: users, Total: total, Page: page, Limit: limit}, nil
}
