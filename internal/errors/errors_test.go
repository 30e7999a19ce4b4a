package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodeConflictAliasTaken, "alias taken"),
			expected: "conflict.alias_taken: alias taken",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeStoreQueryFailed, "query failed", errors.New("disk io error")),
			expected: "store.query_failed: query failed (disk io error)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}

	err2 := New(CodeConflictAliasTaken, "taken")
	if err2.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodeValidationBadJSON, "bad json"),
			expected: CodeValidationBadJSON,
		},
		{
			name:     "wrapped CodedError",
			err:      Wrap(CodeStoreUnavailable, "unavailable", errors.New("cause")),
			expected: CodeStoreUnavailable,
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	if got := GetMessage(nil); got != "" {
		t.Errorf("GetMessage(nil) = %q, want empty", got)
	}
	if got := GetMessage(BadJSON()); got != "messages must be in json format" {
		t.Errorf("GetMessage(BadJSON()) = %q", got)
	}
	if got := GetMessage(errors.New("plain")); got != "plain" {
		t.Errorf("GetMessage(plain) = %q", got)
	}
}

func TestIsCode(t *testing.T) {
	err := AliasTaken("bob")
	if !IsCode(err, CodeConflictAliasTaken) {
		t.Error("IsCode should match the error's own code")
	}
	if IsCode(err, CodeConflictDeviceExpired) {
		t.Error("IsCode should not match a different code")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *CodedError
		code    string
		msgPart string
	}{
		{"MissingID", MissingID(), CodeProtocolMissingID, "uuid4"},
		{"InvalidID", InvalidID(), CodeProtocolInvalidID, "uuid4"},
		{"BadJSON", BadJSON(), CodeValidationBadJSON, "json"},
		{"MissingField", MissingField("alias"), CodeValidationMissingField, `"alias"`},
		{"AliasTaken", AliasTaken("bob"), CodeConflictAliasTaken, `"bob"`},
		{"DeviceExpired", DeviceExpired("d-1"), CodeConflictDeviceExpired, "d-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Message, tt.msgPart) {
				t.Errorf("Message = %q, want it to contain %q", tt.err.Message, tt.msgPart)
			}
		})
	}
}
