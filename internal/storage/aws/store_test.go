package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"head not found", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"wrapped", fmt.Errorf("op: %w", &smithy.GenericAPIError{Code: "NoSuchKey"}), true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"missing bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.ErrorContains(t, err, "bucket is required")

	_, err = New(context.Background(), Config{Bucket: "b"})
	require.ErrorContains(t, err, "region is required")
}

func TestObjectPrefix(t *testing.T) {
	s := NewWithClient(nil, Config{Bucket: "b", Prefix: "/variants/"})
	assert.Equal(t, "variants/cat.jpg/original", s.object("cat.jpg/original"))
}
