// Registry Gateway - Business Registration Platform Edge Authentication
// Copyright 2026 OpenRegistry Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openregistry/registry-gateway

package authz

import (
	"testing"

	"github.com/openregistry/registry-gateway/internal/auth"
)

func TestAuthorize(t *testing.T) {
	caller := &auth.Context{
		Mode:        auth.CallerInteractive,
		SubjectID:   "user-1",
		Roles:       []string{"entity_admin"},
		Permissions: []string{"READ_OWN_ENTITY", "WRITE_OWN_ENTITY", "MANAGE_CONTACTS"},
	}

	tests := []struct {
		name     string
		ac       *auth.Context
		req      Requirement
		wantCode auth.Code // empty means pass
	}{
		{
			name: "zero requirement passes any caller",
			ac:   caller,
			req:  Requirement{},
		},
		{
			name: "zero requirement passes nil caller",
			ac:   nil,
			req:  Requirement{},
		},
		{
			name: "any-of with one held permission",
			ac:   caller,
			req:  Requirement{Permissions: []string{"APPROVE_REGISTRATIONS", "WRITE_OWN_ENTITY"}},
		},
		{
			name:     "any-of with no held permission",
			ac:       caller,
			req:      Requirement{Permissions: []string{"APPROVE_REGISTRATIONS", "READ_ALL_ENTITIES"}},
			wantCode: auth.CodeForbidden,
		},
		{
			name: "all-of satisfied",
			ac:   caller,
			req: Requirement{
				Permissions: []string{"READ_OWN_ENTITY", "WRITE_OWN_ENTITY"},
				Mode:        MatchAll,
			},
		},
		{
			name: "all-of with one missing",
			ac:   caller,
			req: Requirement{
				Permissions: []string{"READ_OWN_ENTITY", "APPROVE_REGISTRATIONS"},
				Mode:        MatchAll,
			},
			wantCode: auth.CodeForbidden,
		},
		{
			name: "roles and permissions both required both held",
			ac:   caller,
			req: Requirement{
				Roles:       []string{"entity_admin"},
				Permissions: []string{"WRITE_OWN_ENTITY"},
			},
		},
		{
			name: "role held but permission missing",
			ac:   caller,
			req: Requirement{
				Roles:       []string{"entity_admin"},
				Permissions: []string{"APPROVE_REGISTRATIONS"},
			},
			wantCode: auth.CodeForbidden,
		},
		{
			name: "permission held but role missing",
			ac:   caller,
			req: Requirement{
				Roles:       []string{"platform_admin"},
				Permissions: []string{"WRITE_OWN_ENTITY"},
			},
			wantCode: auth.CodeForbidden,
		},
		{
			name:     "role requirement alone unmet",
			ac:       caller,
			req:      Requirement{Roles: []string{"platform_admin"}},
			wantCode: auth.CodeForbidden,
		},
		{
			name: "all-of role requirement with one missing",
			ac:   caller,
			req: Requirement{
				Roles: []string{"entity_admin", "platform_admin"},
				Mode:  MatchAll,
			},
			wantCode: auth.CodeForbidden,
		},
		{
			name:     "caller with no grants",
			ac:       &auth.Context{Mode: auth.CallerInteractive, SubjectID: "user-2"},
			req:      Requirement{Permissions: []string{"READ_OWN_ENTITY"}},
			wantCode: auth.CodeForbidden,
		},
		{
			name:     "nil caller against real requirement",
			ac:       nil,
			req:      Requirement{Permissions: []string{"READ_OWN_ENTITY"}},
			wantCode: auth.CodeInternal,
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rej := e.Authorize(tt.ac, tt.req)
			if tt.wantCode == "" {
				if rej != nil {
					t.Fatalf("expected pass, got %s", rej.Code)
				}
				return
			}
			if rej == nil {
				t.Fatalf("expected %s, got pass", tt.wantCode)
			}
			if rej.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", rej.Code, tt.wantCode)
			}
		})
	}
}

func TestRequirementIsZero(t *testing.T) {
	if !(Requirement{}).IsZero() {
		t.Error("empty requirement not zero")
	}
	if (Requirement{Roles: []string{"x"}}).IsZero() {
		t.Error("role requirement reported zero")
	}
	if (Requirement{Permissions: []string{"x"}}).IsZero() {
		t.Error("permission requirement reported zero")
	}
}
