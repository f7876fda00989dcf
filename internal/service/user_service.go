package service

import (
	"context"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/roles"
)

// userService is the concrete implementation of UserService
type userService struct {
	users    repository.UserRepository
	resolver *roles.Resolver
}

// NewUserService creates a UserService
func NewUserService(users repository.UserRepository, resolver *roles.Resolver) UserService {
	return &userService{users: users, resolver: resolver}
}

// Identify refreshes the sender's profile and resolves their role
func (s *userService) Identify(ctx context.Context, ev *models.ChatEvent) (*models.User, error) {
	user := &models.User{
		ID:          ev.UserID,
		DisplayName: ev.DisplayName,
		Handle:      ev.Handle,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, err
	}
	user.Role = s.resolver.Resolve(ctx, user.ID)
	return user, nil
}
