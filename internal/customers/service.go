package customers

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"gorm.io/gorm"
)

// Customer is a resolved stamp holder: a registered user or a pending email.
type Customer struct {
	ID    uuid.UUID          `json:"id"`
	Kind  enums.CustomerKind `json:"kind"`
	Email string             `json:"email,omitempty"`

	// unsaved marks a pending customer minted by Resolve and not yet stored.
	unsaved bool
}

// Unsaved reports whether Save still has to store c.
func (c Customer) Unsaved() bool {
	return c.unsaved
}

// Ref identifies a customer by id or email. ID wins when both are set.
type Ref struct {
	ID    *uuid.UUID
	Email string
}

// MergeResult summarises a pending customer merge.
type MergeResult struct {
	PendingID     uuid.UUID
	CardsMoved    int
	CardsCombined int
	GrantsMoved   int64
}

// Service resolves customers and merges pending identities on signup.
type Service interface {
	// Resolve looks a customer up without writing. An unknown email yields an
	// unsaved pending customer with a fresh id; accounts that are not
	// customers are rejected.
	Resolve(ctx context.Context, ref Ref) (Customer, error)
	// Save stores an unsaved pending customer through tx and returns the
	// stored identity, which differs from c when a concurrent call stored the
	// same email first. Other customers are returned unchanged.
	Save(ctx context.Context, tx *gorm.DB, c Customer) (Customer, error)
	// IdentityIDs returns userID plus every pending id merged into it.
	IdentityIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	MergePending(ctx context.Context, tx *gorm.DB, userID uuid.UUID, email string) (*MergeResult, error)
}

// ServiceParams bundles the customers service dependencies.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo  Repository
	logg  *logger.Logger
	nowFn func() time.Time
}

// NewService validates dependencies and returns a customers service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "customers repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	nowFn := params.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, logg: logg, nowFn: nowFn}, nil
}

func (s *service) Resolve(ctx context.Context, ref Ref) (Customer, error) {
	if ref.ID != nil && *ref.ID != uuid.Nil {
		return s.resolveID(ctx, *ref.ID)
	}
	if ref.Email == "" {
		return Customer{}, pkgerrors.New(pkgerrors.CodeValidation, "customer id or email is required")
	}
	return s.resolveEmail(ctx, ref.Email)
}

func fromUser(user *models.User) (Customer, error) {
	if user.Role != enums.UserRoleCustomer {
		return Customer{}, pkgerrors.New(pkgerrors.CodeForbidden, "stamps can only be issued to customers")
	}
	return Customer{ID: user.ID, Kind: enums.CustomerKindUser, Email: user.Email}, nil
}

func (s *service) resolveID(ctx context.Context, id uuid.UUID) (Customer, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err == nil {
		return fromUser(user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}

	pending, err := s.repo.FindPendingByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Customer{}, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending customer")
	}
	return s.fromPending(ctx, pending)
}

func (s *service) resolveEmail(ctx context.Context, raw string) (Customer, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" {
		return Customer{}, pkgerrors.New(pkgerrors.CodeValidation, "customer email is invalid")
	}
	email := normalizeEmail(addr.Address)

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return fromUser(user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer by email")
	}

	pending, err := s.repo.FindPendingByEmail(ctx, email)
	if err == nil {
		return s.fromPending(ctx, pending)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending customer")
	}

	return Customer{ID: uuid.New(), Kind: enums.CustomerKindPending, Email: email, unsaved: true}, nil
}

func (s *service) Save(ctx context.Context, tx *gorm.DB, c Customer) (Customer, error) {
	if !c.unsaved {
		return c, nil
	}
	repo := s.repo.WithTx(tx)
	created, err := repo.CreatePending(ctx, &models.PendingCustomer{ID: c.ID, Email: c.Email})
	if err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending customer")
	}
	if created {
		s.logg.Info(s.logg.WithField(ctx, "pending_customer_id", c.ID.String()), "customers.pending.created")
		c.unsaved = false
		return c, nil
	}
	// lost a race with a concurrent issuance for the same email
	pending, err := repo.FindPendingByEmail(ctx, c.Email)
	if err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload pending customer")
	}
	return s.fromPendingIn(ctx, repo, pending)
}

func (s *service) fromPending(ctx context.Context, pending *models.PendingCustomer) (Customer, error) {
	return s.fromPendingIn(ctx, s.repo, pending)
}

func (s *service) fromPendingIn(ctx context.Context, repo Repository, pending *models.PendingCustomer) (Customer, error) {
	if pending.MergedIntoUserID == nil {
		return Customer{ID: pending.ID, Kind: enums.CustomerKindPending, Email: pending.Email}, nil
	}
	user, err := repo.FindUserByID(ctx, *pending.MergedIntoUserID)
	if err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup merged customer")
	}
	return Customer{ID: user.ID, Kind: enums.CustomerKindUser, Email: user.Email}, nil
}

func (s *service) IdentityIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	merged, err := s.repo.ListMergedPendingIDs(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list merged identities")
	}
	return append([]uuid.UUID{userID}, merged...), nil
}

// MergePending moves the cards and reward grants of the pending customer
// registered under email to userID. Ledger rows keep the pending id; readers
// use IdentityIDs to include them.
func (s *service) MergePending(ctx context.Context, tx *gorm.DB, userID uuid.UUID, email string) (*MergeResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	repo := s.repo.WithTx(tx)

	pending, err := repo.FindPendingByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending customer")
	}
	if pending.MergedIntoUserID != nil {
		return nil, nil
	}

	result := &MergeResult{PendingID: pending.ID}
	cards, err := repo.ListCustomerCards(ctx, pending.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending cards")
	}
	for _, card := range cards {
		existing, err := repo.FindCustomerCard(ctx, card.CardID, userID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := repo.ReassignCustomerCard(ctx, card.ID, userID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign pending card")
			}
			result.CardsMoved++
		case err != nil:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user card")
		default:
			combined := existing.CurrentStamps + card.CurrentStamps
			if card.Card != nil && combined > card.Card.TotalStamps {
				combined = card.Card.TotalStamps
			}
			if err := repo.SetCustomerCardStamps(ctx, existing.ID, combined); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "combine pending card")
			}
			if err := repo.ReassignGrants(ctx, card.ID, existing.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign pending grants")
			}
			if err := repo.DeleteCustomerCard(ctx, card.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove pending card")
			}
			result.CardsCombined++
		}
	}

	moved, err := repo.ReassignGrantOwner(ctx, pending.ID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign grant owner")
	}
	result.GrantsMoved = moved

	if err := repo.MarkMerged(ctx, pending.ID, userID, s.nowFn()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark pending merged")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"pending_customer_id": pending.ID.String(),
		"user_id":             userID.String(),
		"cards_moved":         result.CardsMoved,
		"cards_combined":      result.CardsCombined,
		"grants_moved":        result.GrantsMoved,
	})
	s.logg.Info(logCtx, "customers.pending.merged")
	return result, nil
}
