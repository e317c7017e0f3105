package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/storage"
)

func TestRetryableAtStartup(t *testing.T) {
	permanent := []error{
		fmt.Errorf("opening: %w", storage.ErrDirLocked),
		fmt.Errorf("%w %q", storage.ErrUnknownBackend, "ftp"),
		fmt.Errorf("%w %q", catalog.ErrUnknownBackend, "mongo"),
		context.Canceled,
	}
	for _, err := range permanent {
		assert.False(t, retryableAtStartup(err), err.Error())
	}
	assert.True(t, retryableAtStartup(errors.New("dial tcp 127.0.0.1:5432: connection refused")))
}
