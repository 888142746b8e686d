package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestNewDefaultsRegion(t *testing.T) {
	store, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.NotNil(t, store)
}
