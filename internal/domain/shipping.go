package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShippingProfileIncomplete indicates a shipping profile missing required fields.
var ErrShippingProfileIncomplete = errors.New("shipping profile: missing required fields")

// NewShippingProfile trims every field and rejects profiles that cannot be used for delivery.
func NewShippingProfile(p ShippingProfile) (ShippingProfile, error) {
	profile := ShippingProfile{
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Email:     strings.ToLower(strings.TrimSpace(p.Email)),
		Street:    strings.TrimSpace(p.Street),
		City:      strings.TrimSpace(p.City),
		State:     strings.TrimSpace(p.State),
		Zipcode:   strings.TrimSpace(p.Zipcode),
		Country:   strings.TrimSpace(p.Country),
		Phone:     strings.TrimSpace(p.Phone),
	}

	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"firstName", profile.FirstName},
		{"lastName", profile.LastName},
		{"email", profile.Email},
		{"street", profile.Street},
		{"city", profile.City},
		{"state", profile.State},
		{"zipcode", profile.Zipcode},
		{"country", profile.Country},
		{"phone", profile.Phone},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return ShippingProfile{}, fmt.Errorf("%w: %s", ErrShippingProfileIncomplete, strings.Join(missing, ", "))
	}
	return profile, nil
}
