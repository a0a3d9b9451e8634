package model

import (
	"errors"
	"testing"
)

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleModerator, true},
		{RoleAdmin, RoleUser, true},
		{RoleModerator, RoleAdmin, false},
		{RoleModerator, RoleModerator, true},
		{RoleModerator, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleModerator, false},
		{RoleUser, RoleUser, true},
		// Unknown roles fail-closed.
		{"unknown", RoleUser, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
		{"", RoleUser, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestUserElevation(t *testing.T) {
	tests := []struct {
		role     string
		elevated bool
	}{
		{RoleAdmin, true},
		{RoleModerator, true},
		{RoleUser, false},
		{"", false},
	}

	for _, tt := range tests {
		u := &User{Role: tt.role}
		if got := u.IsElevated(); got != tt.elevated {
			t.Errorf("User{Role: %q}.IsElevated() = %v, want %v", tt.role, got, tt.elevated)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Errorf("ValidatePassword(%q) error should wrap ErrValidation, got %v", tt.password, err)
		}
	}
}
