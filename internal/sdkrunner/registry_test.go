package sdkrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AbortSessionCancelsRegisteredContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := r.register(context.Background(), "task-1")
	defer cancel()

	require.True(t, r.AbortSession("task-1"))
	require.Error(t, ctx.Err())
}

func TestRegistry_AbortSessionUnknownKeyReturnsFalse(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.AbortSession("does-not-exist"))
}

func TestRegistry_RequestApprovalResolvesOnResolveApproval(t *testing.T) {
	r := NewRegistry()
	_, cancel := r.register(context.Background(), "task-1")
	defer cancel()

	resultCh := r.requestApproval("task-1", "req-1")
	require.True(t, r.ResolveApproval("req-1", true, "looks good"))

	result := <-resultCh
	require.True(t, result.approved)
	require.Equal(t, "looks good", result.message)
}

func TestRegistry_ResolveApprovalUnknownRequestReturnsFalse(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.ResolveApproval("missing", true, ""))
}

func TestRegistry_ReleaseAutoDeniesOutstandingApprovals(t *testing.T) {
	r := NewRegistry()
	_, cancel := r.register(context.Background(), "task-1")
	defer cancel()

	resultCh := r.requestApproval("task-1", "req-1")
	r.release("task-1")

	result := <-resultCh
	require.False(t, result.approved)
	require.Equal(t, "Session ended", result.message)

	require.False(t, r.ResolveApproval("req-1", true, ""))
}
