package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func TestTimeoutStore_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantIs   error
		wantKind auth.FailureKind
	}{
		{name: "not found passes through", err: auth.ErrUserNotFound, wantIs: auth.ErrUserNotFound, wantKind: auth.FailureUnknownUser},
		{name: "invalid role", err: fmt.Errorf("user 1: %w", auth.ErrInvalidRole), wantIs: auth.ErrInvalidRole, wantKind: auth.FailureDataIntegrity},
		{name: "infrastructure", err: errors.New("too many connections"), wantKind: auth.FailureStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := new(MockUserStore)
			next.On("FindByEmail", mock.Anything, "alice@taskflow.com").Return(nil, tt.err)

			_, err := auth.NewTimeoutStore(next, time.Second).FindByEmail(context.Background(), "alice@taskflow.com")

			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Equal(t, tt.wantKind, auth.FailureKindOf(err))
		})
	}
}

func TestTimeoutStore_CreateDuplicatePassesThrough(t *testing.T) {
	next := new(MockUserStore)
	next.On("Create", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: bob@taskflow.com", auth.ErrUserExists))

	_, err := auth.NewTimeoutStore(next, time.Second).Create(context.Background(), &auth.User{Email: "bob@taskflow.com"})
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

func TestTimeoutStore_Deadline(t *testing.T) {
	store := auth.NewTimeoutStore(newBlockingStore(t), 20*time.Millisecond)

	start := time.Now()
	_, err := store.FindByEmail(context.Background(), "slow@taskflow.com")
	elapsed := time.Since(start)

	assert.True(t, auth.IsFailureKind(err, auth.FailureStoreUnavailable))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryOperation, rich.Category)
	assert.Equal(t, "find_by_email", rich.Metadata["operation"])
}

func TestTimeoutStore_Unconfigured(t *testing.T) {
	_, err := auth.NewTimeoutStore(nil, 0).Update(context.Background(), &auth.User{})
	assert.True(t, auth.IsFailureKind(err, auth.FailureStoreUnavailable))
}
