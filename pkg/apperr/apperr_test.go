package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStore_NoRowsBecomesNotFound(t *testing.T) {
	id := uuid.New()
	err := FromStore("get company", "company", id, fmt.Errorf("scan: %w", pgx.ErrNoRows))

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "company "+id.String()+" not found", err.Error())
}

func TestFromStore_OtherErrorsAreRemote(t *testing.T) {
	cause := errors.New("connection reset")
	err := FromStore("list users", "user", nil, cause)

	assert.True(t, IsRemote(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
}

func TestRemote_KeepsDomainKinds(t *testing.T) {
	v := Invalid("tags", "empty tag")
	assert.Same(t, v, Remote("set tags", v))

	nf := NotFound("user", uuid.Nil)
	assert.Same(t, nf, Remote("get user", nf))

	assert.NoError(t, Remote("noop", nil))
}

func TestRetryable_ContextCancellationIsFinal(t *testing.T) {
	err := Remote("list orphans", context.Canceled)
	assert.True(t, IsRemote(err))
	assert.False(t, Retryable(err))
	assert.False(t, Retryable(Invalid("x", "y")))
}
