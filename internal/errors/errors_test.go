package errors

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := NewNoMatchingIndex("task", []string{"year", "month"})
	expected := "[QUERY:NO_MATCHING_INDEX] No index on task for [year, month]"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
	if err.Message != "No index on task for [year, month]" {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewCastFailed("year", "unsigned", "abc", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestError_Is(t *testing.T) {
	err1 := NewDuplicateProperty("tester", "name")
	err2 := NewDuplicateProperty("other", "id")
	err3 := NewDuplicateIndex("tester", "name", []string{"name"})

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !errors.Is(err3, ErrDuplicateIndex) {
		t.Error("sentinel should match constructed error")
	}
	if !errors.Is(fmt.Errorf("outer: %w", err1), ErrDuplicateProperty) {
		t.Error("wrapped error should still match sentinel")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeDeleteFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryQuery, CodeNoMatchingIndex, false},
		{ErrCategorySchema, CodeDuplicateIndex, false},
		{ErrCategoryCatalog, CodeCorruptionDetected, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewUnknownField("task", "week")
	if GetCategory(err) != ErrCategorySchema {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategorySchema)
	}
	if GetCode(err) != CodeUnknownField {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnknownField)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" || GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("foreign errors should return empty category and code")
	}
}

func TestWithDetailsAndFields(t *testing.T) {
	err := NewConstraint("property in use")
	detailed := err.WithDetails(map[string]interface{}{"index": "name"})
	named := err.WithFields("name")

	if detailed.Details["index"] != "name" {
		t.Error("WithDetails should set details")
	}
	if !reflect.DeepEqual(named.Fields, []string{"name"}) {
		t.Errorf("WithFields should set fields, got %v", named.Fields)
	}
	if err.Details != nil || len(err.Fields) != 0 {
		t.Error("copies should not modify original")
	}
}

func TestHelpers(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrap: %w", NewNotFound("space", "task"))) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(NewSpaceExists("task")) {
		t.Error("SPACE_EXISTS is not NOT_FOUND")
	}
	for _, err := range []error{
		NewDuplicateProperty("s", "p"),
		NewDuplicateIndex("s", "i", nil),
		NewSpaceExists("s"),
	} {
		if !IsDuplicate(err) {
			t.Errorf("%v should be a duplicate error", err)
		}
	}
	fields := UnmatchedFields(NewNoMatchingIndex("task", []string{"day"}))
	if !reflect.DeepEqual(fields, []string{"day"}) {
		t.Errorf("got %v, want [day]", fields)
	}
	if UnmatchedFields(NewUnknownField("task", "day")) != nil {
		t.Error("UnmatchedFields should ignore other codes")
	}
	if Message(NewNotFound("space", "task")) != "No space task" {
		t.Errorf("unexpected message %q", Message(NewNotFound("space", "task")))
	}
	if Message(fmt.Errorf("plain")) != "plain" {
		t.Error("Message should fall back to Error()")
	}
}
