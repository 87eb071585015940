package scopes

import (
	"context"
	"testing"
)

func TestStatic_AvailableScopes(t *testing.T) {
	catalog := &Static{
		Available: []string{"openid", "read", "write"},
		Default:   []string{"read"},
		PerClient: map[string][]string{
			"restricted-client": {"read"},
		},
	}

	got, err := catalog.AvailableScopes(context.Background(), "any-client")
	if err != nil {
		t.Fatalf("AvailableScopes() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("AvailableScopes() = %v", got)
	}

	override, err := catalog.AvailableScopes(context.Background(), "restricted-client")
	if err != nil {
		t.Fatalf("AvailableScopes() error = %v", err)
	}
	if len(override) != 1 || override[0] != "read" {
		t.Errorf("AvailableScopes(restricted) = %v", override)
	}
}

func TestStatic_DefaultScopes(t *testing.T) {
	catalog := &Static{
		Available: []string{"openid", "read"},
		Default:   []string{"read"},
	}

	got, err := catalog.DefaultScopes(context.Background(), "any-client")
	if err != nil {
		t.Fatalf("DefaultScopes() error = %v", err)
	}
	if len(got) != 1 || got[0] != "read" {
		t.Errorf("DefaultScopes() = %v", got)
	}
}

func TestStatic_CopiesSlices(t *testing.T) {
	catalog := &Static{Available: []string{"openid", "read"}}

	got, _ := catalog.AvailableScopes(context.Background(), "c")
	got[0] = "mutated"

	again, _ := catalog.AvailableScopes(context.Background(), "c")
	if again[0] != "openid" {
		t.Error("AvailableScopes returned an aliased slice")
	}
}

func TestStatic_Empty(t *testing.T) {
	catalog := &Static{}

	if got, err := catalog.AvailableScopes(context.Background(), "c"); err != nil || len(got) != 0 {
		t.Errorf("AvailableScopes() = %v, %v", got, err)
	}
	if got, err := catalog.DefaultScopes(context.Background(), "c"); err != nil || len(got) != 0 {
		t.Errorf("DefaultScopes() = %v, %v", got, err)
	}
}
