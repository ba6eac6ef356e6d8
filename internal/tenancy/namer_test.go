package tenancy

import (
	"errors"
	"testing"
)

func TestNamer_SchemaName(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		id      int64
		want    string
		wantErr bool
	}{
		{"default prefix", "", 42, "tenant_42", false},
		{"custom prefix", "org_", 7, "org_7", false},
		{"large id", "", 9223372036854775807, "tenant_9223372036854775807", false},
		{"zero", "", 0, "", true},
		{"negative", "", -3, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewNamer(tt.prefix).SchemaName(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTenantIdentifier) {
					t.Fatalf("SchemaName(%d) error = %v, want ErrInvalidTenantIdentifier", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SchemaName(%d) unexpected error: %v", tt.id, err)
			}
			if got != tt.want {
				t.Errorf("SchemaName(%d) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestNamer_Deterministic(t *testing.T) {
	n := NewNamer("")
	a, _ := n.SchemaName(5)
	b, _ := n.SchemaName(5)
	if a != b {
		t.Errorf("SchemaName is not deterministic: %q vs %q", a, b)
	}
}

func TestNamer_TenantID(t *testing.T) {
	n := NewNamer("tenant_")
	tests := []struct {
		schema string
		want   int64
		ok     bool
	}{
		{"tenant_1", 1, true},
		{"tenant_123", 123, true},
		{"tenant_", 0, false},
		{"tenant_0", 0, false},
		{"tenant_007", 0, false},
		{"tenant_-1", 0, false},
		{"tenant_abc", 0, false},
		{"public", 0, false},
		{"tenantx_1", 0, false},
	}
	for _, tt := range tests {
		got, ok := n.TenantID(tt.schema)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TenantID(%q) = (%d, %v), want (%d, %v)", tt.schema, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNamer_RoundTrip(t *testing.T) {
	n := NewNamer("")
	for _, id := range []int64{1, 2, 99, 100000} {
		schema, err := n.SchemaName(id)
		if err != nil {
			t.Fatalf("SchemaName(%d): %v", id, err)
		}
		got, ok := n.TenantID(schema)
		if !ok || got != id {
			t.Errorf("TenantID(SchemaName(%d)) = (%d, %v)", id, got, ok)
		}
	}
}

func TestParseTenantID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
		{"1; DROP SCHEMA public", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTenantID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTenantIdentifier) {
				t.Errorf("ParseTenantID(%q) error = %v, want ErrInvalidTenantIdentifier", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseTenantID(%q) = (%d, %v), want %d", tt.in, got, err, tt.want)
		}
	}
}
