package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crofflepos/internal/availability"
	"crofflepos/internal/bir"
	"crofflepos/internal/domain"
	"crofflepos/internal/inventory"
	"crofflepos/internal/recipes"
	"crofflepos/internal/store"
	"crofflepos/internal/xid"
)

// ErrForbidden is returned when the actor lacks the role or store access an
// operation needs.
var ErrForbidden = errors.New("forbidden")

// SystemActor is used by background jobs and CLI commands.
var SystemActor = domain.Actor{Username: "system", Role: domain.RoleAdmin}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// PINVerifier checks a manager PIN presented at the register.
type PINVerifier interface {
	ValidateManagerPIN(pin string) bool
}

type Options struct {
	DefaultStoreID string
	VATRatePercent int
	Location       *time.Location
}

type Service struct {
	repo           store.Repository
	deductor       *inventory.Deductor
	retry          *inventory.RetryQueue
	reconciler     *inventory.Reconciler
	availability   *availability.Engine
	recipes        *recipes.Manager
	pins           PINVerifier
	defaultStoreID string
	vatRate        int
	loc            *time.Location
	now            func() time.Time
	log            logrus.FieldLogger
}

func New(repo store.Repository, deductor *inventory.Deductor, retry *inventory.RetryQueue, avail *availability.Engine, recipeManager *recipes.Manager, opts Options, logger logrus.FieldLogger) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.VATRatePercent <= 0 {
		opts.VATRatePercent = bir.DefaultVATRatePercent
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Service{
		repo:           repo,
		deductor:       deductor,
		retry:          retry,
		reconciler:     inventory.NewReconciler(repo, deductor, logger),
		availability:   avail,
		recipes:        recipeManager,
		defaultStoreID: opts.DefaultStoreID,
		vatRate:        opts.VATRatePercent,
		loc:            opts.Location,
		now:            func() time.Time { return time.Now().UTC() },
		log:            logger.WithField("component", "service"),
	}
	if deductor != nil {
		deductor.OnStockChange(s.stockChanged)
	}
	return s
}

// SetPINVerifier enables manager PIN approval for voids and refunds.
func (s *Service) SetPINVerifier(v PINVerifier) {
	s.pins = v
}

// authorize returns the actor when it holds one of roles and, for a
// non-empty storeID, may act on that store. Admin passes every role check.
func (s *Service) authorize(ctx context.Context, storeID string, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if len(roles) > 0 && !actor.HasRole(roles...) {
		return domain.Actor{}, fmt.Errorf("%w: %s role required", ErrForbidden, strings.Join(roles, " or "))
	}
	if storeID != "" && !actor.CanAccessStore(storeID) {
		return domain.Actor{}, fmt.Errorf("%w: no access to store %s", ErrForbidden, storeID)
	}
	return actor, nil
}

// managerApproval passes when the actor is a manager or above, or when a
// valid manager PIN was presented.
func (s *Service) managerApproval(actor domain.Actor, pin string) error {
	if actor.HasRole(domain.RoleManager, domain.RoleOwner) {
		return nil
	}
	if s.pins != nil && strings.TrimSpace(pin) != "" && s.pins.ValidateManagerPIN(pin) {
		return nil
	}
	return fmt.Errorf("%w: manager approval required", ErrForbidden)
}

func (s *Service) storeOrDefault(storeID string) string {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return s.defaultStoreID
	}
	return storeID
}

func (s *Service) stockChanged(ctx context.Context, storeID string) {
	if s.availability != nil {
		s.availability.Invalidate(ctx, storeID)
	}
}

// businessDay parses YYYY-MM-DD in the business time zone. An empty date is
// today.
func (s *Service) businessDay(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		day = parsed
	}
	from, to := inventory.BusinessDay(day)
	return from, to, nil
}

// dateRange parses an inclusive from/to pair of business days. Missing ends
// default to today.
func (s *Service) dateRange(fromDate string, toDate string) (time.Time, time.Time, error) {
	from, _, err := s.businessDay(fromDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if strings.TrimSpace(toDate) == "" {
		toDate = fromDate
	}
	_, to, err := s.businessDay(toDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: empty date range", store.ErrInvalidTransaction)
	}
	return from, to, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID, domain.RoleManager, domain.RoleOwner); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.businessDay(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
