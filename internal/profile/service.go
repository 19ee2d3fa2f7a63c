package profile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sidehustlers/internal/models"
)

const (
	defaultWorkStart = "09:00"
	defaultWorkEnd   = "17:00"
)

// NewProfile is the data written at registration.
type NewProfile struct {
	UID               string             `json:"uid" validate:"required"`
	Email             string             `json:"email" validate:"required,email"`
	AccountType       models.AccountType `json:"accountType" validate:"required,oneof=customer provider"`
	FirstName         string             `json:"firstName"`
	LastName          string             `json:"lastName"`
	ProfilePictureURL string             `json:"profilePictureUrl"`
}

type CustomerDetails struct {
	Phone   string          `json:"phone"`
	Address *models.Address `json:"address" validate:"omitempty"`
	DOB     string          `json:"dob" validate:"omitempty,datetime=2006-01-02"`
}

type ProviderDetails struct {
	BusinessName        string               `json:"businessName" validate:"required"`
	BusinessDescription string               `json:"businessDescription"`
	Services            []string             `json:"services" validate:"min=1"`
	ServiceArea         []string             `json:"serviceArea" validate:"min=1"`
	Phone               string               `json:"phone" validate:"required"`
	Address             *models.Address      `json:"address" validate:"required"`
	WorkingHours        *models.WorkingHours `json:"workingHours" validate:"omitempty"`
}

var fieldMessages = map[string]string{
	"services":     "Bitte wählen Sie mindestens einen Service aus",
	"serviceArea":  "Bitte wählen Sie mindestens ein Servicegebiet aus",
	"businessName": "Bitte geben Sie einen Firmennamen an",
	"phone":        "Bitte geben Sie eine Telefonnummer an",
	"address":      "Bitte geben Sie eine vollständige Adresse an",
	"workingHours": "Bitte geben Sie gültige Arbeitszeiten an (HH:MM)",
	"dob":          "Bitte geben Sie ein gültiges Geburtsdatum an",
	"email":        "Ungültige E-Mail-Adresse.",
	"accountType":  "Bitte wählen Sie einen gültigen Kontotyp",
}

const genericFieldMessage = "Ungültige Eingabe"

// ValidationError carries one German message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns the field messages ordered by field name.
func (e *ValidationError) Messages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return msgs
}

// Service implements the profile flows on top of a Store.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, logger *zap.Logger) *Service {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		store:    store,
		validate: validate,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) GetProfile(ctx context.Context, uid string) (models.Profile, error) {
	return s.store.Get(ctx, uid)
}

func (s *Service) CreateProfile(ctx context.Context, in NewProfile) (*models.IncompleteProfile, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.IncompleteProfile{ProfileBase: models.ProfileBase{
		UID:               in.UID,
		Email:             in.Email,
		AccountType:       in.AccountType,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		ProfilePictureURL: in.ProfilePictureURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", in.UID, err)
	}

	s.logger.Info("profile created", zap.String("uid", in.UID), zap.String("accountType", string(in.AccountType)))
	return p, nil
}

// CompleteCustomerProfile turns the stored profile into a customer profile.
// Repeating the call updates the details and keeps the customer id.
func (s *Service) CompleteCustomerProfile(ctx context.Context, uid string, in CustomerDetails) (*models.CustomerProfile, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Address != nil && *in.Address == (models.Address{}) {
		in.Address = nil
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	var out *models.CustomerProfile
	switch p := current.(type) {
	case *models.IncompleteProfile:
		if p.AccountType != models.AccountTypeCustomer {
			return nil, ErrAccountTypeMismatch
		}
		out = &models.CustomerProfile{ProfileBase: p.ProfileBase, CustomerID: s.newID()}
	case *models.CustomerProfile:
		out = p
	case *models.ProviderProfile:
		return nil, ErrAccountTypeMismatch
	}

	out.Phone = in.Phone
	out.Address = in.Address
	out.DOB = in.DOB
	out.UpdatedAt = s.now()

	if err := s.store.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("save customer profile %s: %w", uid, err)
	}
	s.logger.Info("customer profile completed", zap.String("uid", uid), zap.String("customerId", out.CustomerID))
	return out, nil
}

// CompleteProviderProfile validates before touching the store, so an invalid
// submission never causes a write.
func (s *Service) CompleteProviderProfile(ctx context.Context, uid string, in ProviderDetails) (*models.ProviderProfile, error) {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Services = models.CleanList(in.Services)
	in.ServiceArea = models.CleanList(in.ServiceArea)
	if err := s.check(in); err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	var out *models.ProviderProfile
	switch p := current.(type) {
	case *models.IncompleteProfile:
		if p.AccountType != models.AccountTypeProvider {
			return nil, ErrAccountTypeMismatch
		}
		out = &models.ProviderProfile{
			ProfileBase: p.ProfileBase,
			ProviderID:  s.newID(),
			Status:      models.ProviderStatusActive,
		}
	case *models.ProviderProfile:
		out = p
	case *models.CustomerProfile:
		return nil, ErrAccountTypeMismatch
	}

	hours := models.WorkingHours{Start: defaultWorkStart, End: defaultWorkEnd}
	if in.WorkingHours != nil {
		hours = *in.WorkingHours
	}

	out.BusinessName = in.BusinessName
	out.BusinessDescription = strings.TrimSpace(in.BusinessDescription)
	out.DisplayName = in.BusinessName
	out.Services = in.Services
	out.ServiceArea = in.ServiceArea
	out.Phone = in.Phone
	out.Address = in.Address
	out.WorkingHours = &hours
	out.ServiceCount = len(in.Services)
	out.UpdatedAt = s.now()

	if err := s.store.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("save provider profile %s: %w", uid, err)
	}
	s.logger.Info("provider profile completed", zap.String("uid", uid), zap.String("providerId", out.ProviderID))
	return out, nil
}

func (s *Service) UpdateProfile(ctx context.Context, uid string, patch models.ProfilePatch) (models.Profile, error) {
	if patch.Services != nil {
		patch.Services = models.CleanList(patch.Services)
	}
	if patch.ServiceArea != nil {
		patch.ServiceArea = models.CleanList(patch.ServiceArea)
	}
	if err := s.check(patch); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, uid, patch, s.now())
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := topLevelField(fe.Namespace())
		msg, ok := fieldMessages[field]
		if !ok {
			msg = genericFieldMessage + ": " + field
		}
		out.Fields[field] = msg
	}
	return out
}

// topLevelField maps "ProviderDetails.address.zip" to "address".
func topLevelField(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return namespace
	}
	field, _, _ := strings.Cut(parts[1], "[")
	return field
}
