package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{fmt.Errorf("batch_name: %w", ErrMissingField), CategoryValidation},
		{ErrInvalidTransition, CategoryValidation},
		{fmt.Errorf("image 7: %w", ErrImageNotFound), CategoryReference},
		{ErrTransformationUnknown, CategoryReference},
		{ErrDuplicate, CategoryConflict},
		{fmt.Errorf("post: %w", ErrTransport), CategoryTransport},
		{ErrNoPhysicalArtifacts, CategoryConsistency},
		{ErrAccountDisabled, CategoryAuthorization},
		{errors.New("boom"), CategoryInternal},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := CategoryOf(tc.err); got != tc.want {
			t.Fatalf("CategoryOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
