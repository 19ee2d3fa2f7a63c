package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrPatchNotApplicable = errors.New("field not applicable to profile")

// ProfilePatch is a partial update. Nil fields are left untouched. The uid,
// account type and completeness of a profile can never be patched.
type ProfilePatch struct {
	FirstName           *string       `json:"firstName"`
	LastName            *string       `json:"lastName"`
	ProfilePictureURL   *string       `json:"profilePictureUrl"`
	Phone               *string       `json:"phone"`
	Address             *Address      `json:"address" validate:"omitempty"`
	DOB                 *string       `json:"dob"`
	DisplayName         *string       `json:"displayName"`
	Bio                 *string       `json:"bio"`
	BusinessName        *string       `json:"businessName"`
	BusinessDescription *string       `json:"businessDescription"`
	Services            []string      `json:"services" validate:"omitempty,min=1,dive,required"`
	ServiceArea         []string      `json:"serviceArea" validate:"omitempty,min=1,dive,required"`
	WorkingHours        *WorkingHours `json:"workingHours" validate:"omitempty"`
}

func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.ProfilePictureURL == nil &&
		p.Phone == nil && p.Address == nil && p.DOB == nil && !hasProviderFields(p)
}

// ApplyPatch merges the patch into the profile in place and bumps UpdatedAt.
// It fails without modifying the profile when the patch names a field the
// variant does not carry.
func ApplyPatch(p Profile, patch ProfilePatch, now time.Time) error {
	if err := checkPatch(p, patch); err != nil {
		return err
	}

	b := p.Base()
	setString(&b.FirstName, patch.FirstName)
	setString(&b.LastName, patch.LastName)
	setString(&b.ProfilePictureURL, patch.ProfilePictureURL)

	switch v := p.(type) {
	case *IncompleteProfile:
	case *CustomerProfile:
		setString(&v.Phone, patch.Phone)
		setString(&v.DOB, patch.DOB)
		if patch.Address != nil {
			addr := *patch.Address
			v.Address = &addr
		}
	case *ProviderProfile:
		setString(&v.Phone, patch.Phone)
		setString(&v.DisplayName, patch.DisplayName)
		setString(&v.Bio, patch.Bio)
		setString(&v.BusinessName, patch.BusinessName)
		setString(&v.BusinessDescription, patch.BusinessDescription)
		if patch.Address != nil {
			addr := *patch.Address
			v.Address = &addr
		}
		if patch.Services != nil {
			v.Services = append([]string(nil), patch.Services...)
		}
		if patch.ServiceArea != nil {
			v.ServiceArea = append([]string(nil), patch.ServiceArea...)
		}
		if patch.WorkingHours != nil {
			hours := *patch.WorkingHours
			v.WorkingHours = &hours
		}
	}

	b.UpdatedAt = now
	return nil
}

func checkPatch(p Profile, patch ProfilePatch) error {
	var forbidden []string
	customerFields := patch.Phone != nil || patch.Address != nil

	switch p.(type) {
	case *IncompleteProfile:
		if customerFields || patch.DOB != nil {
			forbidden = append(forbidden, "phone/address/dob")
		}
		if hasProviderFields(patch) {
			forbidden = append(forbidden, "provider fields")
		}
	case *CustomerProfile:
		if hasProviderFields(patch) {
			forbidden = append(forbidden, "provider fields")
		}
	case *ProviderProfile:
		if patch.DOB != nil {
			forbidden = append(forbidden, "dob")
		}
	}

	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %v", ErrPatchNotApplicable, forbidden)
	}
	return nil
}

func hasProviderFields(patch ProfilePatch) bool {
	return patch.DisplayName != nil || patch.Bio != nil || patch.BusinessName != nil ||
		patch.BusinessDescription != nil || patch.Services != nil || patch.ServiceArea != nil ||
		patch.WorkingHours != nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
