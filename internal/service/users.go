package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

const minPasswordLength = 8

// CreateUser adds a staff account. Admin may create any role; an owner may
// create managers and cashiers.
func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	actor, err := s.authorize(ctx, "", domain.RoleOwner)
	if err != nil {
		return domain.UserView{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Username == "" || len(req.Password) < minPasswordLength {
		return domain.UserView{}, fmt.Errorf("%w: username and a password of at least %d characters required", store.ErrInvalidTransaction, minPasswordLength)
	}
	switch req.Role {
	case domain.RoleManager, domain.RoleCashier:
	case domain.RoleOwner, domain.RoleAdmin:
		if actor.Role != domain.RoleAdmin {
			return domain.UserView{}, fmt.Errorf("%w: only admin may create %s accounts", ErrForbidden, req.Role)
		}
	default:
		return domain.UserView{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidTransaction, req.Role)
	}

	storeIDs := make([]string, 0, len(req.StoreIDs))
	for _, id := range req.StoreIDs {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(storeIDs, id) {
			continue
		}
		if _, err := s.repo.GetStore(ctx, id); err != nil {
			return domain.UserView{}, err
		}
		storeIDs = append(storeIDs, id)
	}
	if (req.Role == domain.RoleManager || req.Role == domain.RoleCashier) && len(storeIDs) == 0 {
		return domain.UserView{}, fmt.Errorf("%w: %s must be assigned to a store", store.ErrInvalidTransaction, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserView{}, err
	}
	account := domain.UserAccount{
		Username:  req.Username,
		Password:  string(hash),
		Role:      req.Role,
		StoreIDs:  storeIDs,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.UserView{}, err
	}

	s.logAudit(ctx, "", "user_create", "user", account.Username, fmt.Sprintf("role=%s,stores=%s", account.Role, strings.Join(storeIDs, ",")))
	return toUserView(account), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	return views, nil
}

func (s *Service) ChangePassword(ctx context.Context, username string, password string) error {
	actor, err := s.authorize(ctx, "")
	if err != nil {
		return err
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username != actor.Username && !actor.HasRole(domain.RoleOwner) {
		return fmt.Errorf("%w: cannot change another user's password", ErrForbidden)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidTransaction, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, "", "user_password_change", "user", username, "")
	return nil
}

func toUserView(u domain.UserAccount) domain.UserView {
	return domain.UserView{
		Username:  u.Username,
		Role:      u.Role,
		StoreIDs:  slices.Clone(u.StoreIDs),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}
