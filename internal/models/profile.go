package models

import (
	"fmt"
	"time"
)

type AccountType string

const (
	AccountTypeCustomer AccountType = "customer"
	AccountTypeProvider AccountType = "provider"
)

func (a AccountType) Valid() bool {
	return a == AccountTypeCustomer || a == AccountTypeProvider
}

type ProviderStatus string

const (
	ProviderStatusActive     ProviderStatus = "active"
	ProviderStatusRestricted ProviderStatus = "restricted"
	ProviderStatusDeleted    ProviderStatus = "deleted"
)

type Address struct {
	StreetAndNumber string `bson:"streetAndNumber" json:"streetAndNumber" validate:"required"`
	Zip             string `bson:"zip" json:"zip" validate:"required"`
	City            string `bson:"city" json:"city" validate:"required"`
}

type WorkingHours struct {
	Start string `bson:"start" json:"start" validate:"required,datetime=15:04"`
	End   string `bson:"end" json:"end" validate:"required,datetime=15:04"`
}

type Verification struct {
	EmailVerified bool `bson:"emailVerified" json:"emailVerified"`
	IDVerified    bool `bson:"idVerified" json:"idVerified"`
}

type Documents struct {
	IDURL               string `bson:"idUrl,omitempty" json:"idUrl,omitempty"`
	TradeLicenseURL     string `bson:"tradeLicenseUrl,omitempty" json:"tradeLicenseUrl,omitempty"`
	CriminalRegisterURL string `bson:"criminalRegisterUrl,omitempty" json:"criminalRegisterUrl,omitempty"`
	TaxID               string `bson:"taxId,omitempty" json:"taxId,omitempty"`
}

// ProfileBase holds the fields shared by every profile variant.
type ProfileBase struct {
	UID               string
	Email             string
	AccountType       AccountType
	FirstName         string
	LastName          string
	ProfilePictureURL string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Profile is one of *IncompleteProfile, *CustomerProfile or *ProviderProfile.
// Consumers switch on the concrete type; the set of variants is closed.
type Profile interface {
	Base() *ProfileBase
	IsComplete() bool
	isProfile()
}

// IncompleteProfile is written at registration, before role specific
// details have been collected.
type IncompleteProfile struct {
	ProfileBase
}

type CustomerProfile struct {
	ProfileBase
	CustomerID  string
	Phone       string
	Address     *Address
	DOB         string
	RatingAvg   float64
	RatingCount int
	OrderCount  int
}

type ProviderProfile struct {
	ProfileBase
	ProviderID          string
	DisplayName         string
	Bio                 string
	Status              ProviderStatus
	BusinessName        string
	BusinessDescription string
	Services            []string
	ServiceArea         []string
	WorkingHours        *WorkingHours
	Phone               string
	Address             *Address
	Verification        Verification
	Documents           Documents
	ServiceCount        int
	OrderCount          int
	RatingAvg           float64
	RatingCount         int
}

func (p *IncompleteProfile) Base() *ProfileBase { return &p.ProfileBase }
func (p *CustomerProfile) Base() *ProfileBase   { return &p.ProfileBase }
func (p *ProviderProfile) Base() *ProfileBase   { return &p.ProfileBase }

func (*IncompleteProfile) IsComplete() bool { return false }
func (*CustomerProfile) IsComplete() bool   { return true }
func (*ProviderProfile) IsComplete() bool   { return true }

func (*IncompleteProfile) isProfile() {}
func (*CustomerProfile) isProfile()   {}
func (*ProviderProfile) isProfile()   {}

// FullName joins first and last name.
func (b ProfileBase) FullName() string {
	switch {
	case b.FirstName == "":
		return b.LastName
	case b.LastName == "":
		return b.FirstName
	}
	return b.FirstName + " " + b.LastName
}

// ProfileDocument is the stored and serialized form of a Profile: a single
// flat document per user, keyed by the identity uid and discriminated by
// isProfileComplete and accountType.
type ProfileDocument struct {
	UID               string      `bson:"_id" json:"uid"`
	Email             string      `bson:"email" json:"email"`
	AccountType       AccountType `bson:"accountType" json:"accountType"`
	FirstName         string      `bson:"firstName" json:"firstName"`
	LastName          string      `bson:"lastName" json:"lastName"`
	ProfilePictureURL string      `bson:"profilePictureUrl,omitempty" json:"profilePictureUrl,omitempty"`
	IsProfileComplete bool        `bson:"isProfileComplete" json:"isProfileComplete"`
	CreatedAt         time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time   `bson:"updatedAt" json:"updatedAt"`

	Phone   string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Address *Address `bson:"address,omitempty" json:"address,omitempty"`
	DOB     string   `bson:"dob,omitempty" json:"dob,omitempty"`

	CustomerID string `bson:"customerId,omitempty" json:"customerId,omitempty"`

	ProviderID          string         `bson:"providerId,omitempty" json:"providerId,omitempty"`
	DisplayName         string         `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Bio                 string         `bson:"bio,omitempty" json:"bio,omitempty"`
	Status              ProviderStatus `bson:"status,omitempty" json:"status,omitempty"`
	BusinessName        string         `bson:"businessName,omitempty" json:"businessName,omitempty"`
	BusinessDescription string         `bson:"businessDescription,omitempty" json:"businessDescription,omitempty"`
	Services            StringList     `bson:"services,omitempty" json:"services,omitempty"`
	ServiceArea         StringList     `bson:"serviceArea,omitempty" json:"serviceArea,omitempty"`
	WorkingHours        *WorkingHours  `bson:"workingHours,omitempty" json:"workingHours,omitempty"`
	Verification        *Verification  `bson:"verification,omitempty" json:"verification,omitempty"`
	Documents           *Documents     `bson:"documents,omitempty" json:"documents,omitempty"`
	ServiceCount        int            `bson:"serviceCount,omitempty" json:"serviceCount,omitempty"`

	OrderCount  int     `bson:"orderCount" json:"orderCount"`
	RatingAvg   float64 `bson:"ratingAvg" json:"ratingAvg"`
	RatingCount int     `bson:"ratingCount" json:"ratingCount"`
}

func NewProfileDocument(p Profile) ProfileDocument {
	b := p.Base()
	doc := ProfileDocument{
		UID:               b.UID,
		Email:             b.Email,
		AccountType:       b.AccountType,
		FirstName:         b.FirstName,
		LastName:          b.LastName,
		ProfilePictureURL: b.ProfilePictureURL,
		IsProfileComplete: p.IsComplete(),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}

	switch v := p.(type) {
	case *IncompleteProfile:
	case *CustomerProfile:
		doc.CustomerID = v.CustomerID
		doc.Phone = v.Phone
		doc.Address = v.Address
		doc.DOB = v.DOB
		doc.OrderCount = v.OrderCount
		doc.RatingAvg = v.RatingAvg
		doc.RatingCount = v.RatingCount
	case *ProviderProfile:
		verification := v.Verification
		documents := v.Documents
		doc.ProviderID = v.ProviderID
		doc.DisplayName = v.DisplayName
		doc.Bio = v.Bio
		doc.Status = v.Status
		doc.BusinessName = v.BusinessName
		doc.BusinessDescription = v.BusinessDescription
		doc.Services = StringList(v.Services)
		doc.ServiceArea = StringList(v.ServiceArea)
		doc.WorkingHours = v.WorkingHours
		doc.Phone = v.Phone
		doc.Address = v.Address
		doc.Verification = &verification
		doc.Documents = &documents
		doc.ServiceCount = v.ServiceCount
		doc.OrderCount = v.OrderCount
		doc.RatingAvg = v.RatingAvg
		doc.RatingCount = v.RatingCount
	}
	return doc
}

// Profile decodes the document into its variant.
func (d ProfileDocument) Profile() (Profile, error) {
	base := ProfileBase{
		UID:               d.UID,
		Email:             d.Email,
		AccountType:       d.AccountType,
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		ProfilePictureURL: d.ProfilePictureURL,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}

	if !d.AccountType.Valid() {
		return nil, fmt.Errorf("profile %s: unknown account type %q", d.UID, d.AccountType)
	}
	if !d.IsProfileComplete {
		return &IncompleteProfile{ProfileBase: base}, nil
	}

	if d.AccountType == AccountTypeCustomer {
		return &CustomerProfile{
			ProfileBase: base,
			CustomerID:  d.CustomerID,
			Phone:       d.Phone,
			Address:     d.Address,
			DOB:         d.DOB,
			RatingAvg:   d.RatingAvg,
			RatingCount: d.RatingCount,
			OrderCount:  d.OrderCount,
		}, nil
	}

	p := &ProviderProfile{
		ProfileBase:         base,
		ProviderID:          d.ProviderID,
		DisplayName:         d.DisplayName,
		Bio:                 d.Bio,
		Status:              d.Status,
		BusinessName:        d.BusinessName,
		BusinessDescription: d.BusinessDescription,
		Services:            []string(d.Services),
		ServiceArea:         []string(d.ServiceArea),
		WorkingHours:        d.WorkingHours,
		Phone:               d.Phone,
		Address:             d.Address,
		ServiceCount:        d.ServiceCount,
		OrderCount:          d.OrderCount,
		RatingAvg:           d.RatingAvg,
		RatingCount:         d.RatingCount,
	}
	if d.Verification != nil {
		p.Verification = *d.Verification
	}
	if d.Documents != nil {
		p.Documents = *d.Documents
	}
	return p, nil
}
