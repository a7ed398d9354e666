package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewCredentials_RequiresAtLeastOneMethod(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		subject string
		wantErr bool
	}{
		{"password only", "abc.def", "", false},
		{"federated only", "", "g1", false},
		{"both", "abc.def", "g1", false},
		{"neither", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCredentials(tt.hash, tt.subject)
			if tt.wantErr {
				if !errors.Is(err, ErrNoAuthMethod) {
					t.Fatalf("error = %v, want ErrNoAuthMethod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.Valid() {
				t.Error("credentials should be valid")
			}
		})
	}
}

func TestCredentials_ZeroValueIsInvalid(t *testing.T) {
	var c Credentials
	if c.Valid() {
		t.Error("zero credentials should not be valid")
	}
}

func TestCredentials_WithSubject_KeepsPasswordHash(t *testing.T) {
	c := PasswordCredentials("key.salt").WithSubject("g1")

	hash, ok := c.PasswordHash()
	if !ok || hash != "key.salt" {
		t.Errorf("PasswordHash() = (%q, %v), want (%q, true)", hash, ok, "key.salt")
	}
	sub, ok := c.SubjectID()
	if !ok || sub != "g1" {
		t.Errorf("SubjectID() = (%q, %v), want (%q, true)", sub, ok, "g1")
	}
}

func TestFederatedCredentials_HasNoPassword(t *testing.T) {
	c := FederatedCredentials("g1")
	if _, ok := c.PasswordHash(); ok {
		t.Error("federated credentials should not have a password hash")
	}
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		in        string
		wantFirst string
		wantLast  string
	}{
		{"Ann Lee", "Ann", "Lee"},
		{"Mary Ann van Dyke", "Mary", "Ann van Dyke"},
		{"Prince", "Prince", ""},
		{"", "", ""},
		{"  Ann   Lee  ", "Ann", "Lee"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			first, last := SplitDisplayName(tt.in)
			if first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("SplitDisplayName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestAPIError_IsComparesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewInvalidClaimError("email"))

	if !errors.Is(err, ErrInvalidClaim) {
		t.Error("expected errors.Is to match ErrInvalidClaim")
	}
	if errors.Is(err, ErrResolutionConflict) {
		t.Error("did not expect errors.Is to match ErrResolutionConflict")
	}
}
