package types

import (
	"encoding/json"
	"testing"
)

func TestNewID(t *testing.T) {
	t.Run("generates valid ID", func(t *testing.T) {
		id := NewID()

		if id.IsZero() {
			t.Error("NewID() returned zero value")
		}

		if err := id.Validate(); err != nil {
			t.Errorf("NewID() generated invalid ID: %v", err)
		}
	})

	t.Run("generates unique IDs", func(t *testing.T) {
		if NewID() == NewID() {
			t.Error("NewID() generated duplicate IDs")
		}
	})
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid UUID",
			input:   "550e8400-e29b-41d4-a716-446655440000",
			wantErr: false,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "not a UUID",
			input:   "add-user-auth",
			wantErr: true,
		},
		{
			name:    "partial UUID",
			input:   "550e8400-e29b-41d4",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Error("ParseID() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("ParseID() unexpected error: %v", err)
				return
			}

			if id.IsZero() {
				t.Error("ParseID() returned zero value for valid input")
			}
		})
	}
}

func TestID_JSON(t *testing.T) {
	t.Run("round trip preserves ID", func(t *testing.T) {
		original := NewID()

		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}

		var decoded ID
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal error: %v", err)
		}

		if decoded != original {
			t.Errorf("round trip failed: got %v, want %v", decoded, original)
		}
	})

	t.Run("zero value marshals as null", func(t *testing.T) {
		var id ID

		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}

		if string(data) != "null" {
			t.Errorf("Marshal() = %s, want null", data)
		}
	})

	t.Run("rejects malformed ID", func(t *testing.T) {
		var id ID
		if err := json.Unmarshal([]byte(`"not-a-uuid"`), &id); err == nil {
			t.Error("Unmarshal() expected error for malformed ID")
		}
	})
}
