package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/closetline/api/internal/domain"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists customer accounts in Firestore.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// Insert creates the account. The email lookup and the create share one transaction, so two
// concurrent registrations for the same address cannot both succeed.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	doc := fromDomainUser(user)
	if doc.Email == "" {
		return errors.New("user repository: email is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, user.ID)
		if err != nil {
			return err
		}
		iter := tx.Documents(ref.Parent.Where("email", "==", doc.Email).Limit(1))
		defer iter.Stop()
		if _, err := iter.Next(); err == nil {
			return pfirestore.Conflict("users.insert", fmt.Errorf("email %q already registered", doc.Email))
		} else if !errors.Is(err, iterator.Done) {
			return pfirestore.WrapError("users.insert", err)
		}
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("users.insert", err)
		}
		return nil
	})
}

// Update overwrites the stored account.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	return r.base.Set(ctx, user.ID, fromDomainUser(user))
}

// FindByID loads the account by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc.ID, doc.Data), nil
}

// FindByEmail loads the account registered under the lower-cased email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.NotFound("users.findByEmail", email)
	}
	return toDomainUser(docs[0].ID, docs[0].Data), nil
}

type userDocument struct {
	Name         string                   `firestore:"name"`
	Email        string                   `firestore:"email"`
	PasswordHash string                   `firestore:"passwordHash"`
	Shipping     *shippingProfileDocument `firestore:"shipping,omitempty"`
	CreatedAt    time.Time                `firestore:"createdAt"`
	UpdatedAt    time.Time                `firestore:"updatedAt"`
}

type shippingProfileDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	State     string `firestore:"state"`
	Zipcode   string `firestore:"zipcode"`
	Country   string `firestore:"country"`
	Phone     string `firestore:"phone"`
}

func toDomainUser(id string, doc userDocument) domain.User {
	user := domain.User{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.Shipping != nil {
		profile := toDomainShipping(*doc.Shipping)
		user.Shipping = &profile
	}
	return user
}

func fromDomainUser(user domain.User) userDocument {
	doc := userDocument{
		Name:         strings.TrimSpace(user.Name),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
	if user.Shipping != nil {
		profile := fromDomainShipping(*user.Shipping)
		doc.Shipping = &profile
	}
	return doc
}

func toDomainShipping(doc shippingProfileDocument) domain.ShippingProfile {
	return domain.ShippingProfile{
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Email:     doc.Email,
		Street:    doc.Street,
		City:      doc.City,
		State:     doc.State,
		Zipcode:   doc.Zipcode,
		Country:   doc.Country,
		Phone:     doc.Phone,
	}
}

func fromDomainShipping(profile domain.ShippingProfile) shippingProfileDocument {
	return shippingProfileDocument{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Email:     profile.Email,
		Street:    profile.Street,
		City:      profile.City,
		State:     profile.State,
		Zipcode:   profile.Zipcode,
		Country:   profile.Country,
		Phone:     profile.Phone,
	}
}
