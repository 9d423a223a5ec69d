package cdc

import (
	"context"
	"errors"
	"testing"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeCloseBeforeStart(t *testing.T) {
	runtime := NewRuntime(EngineConfig{})
	require.NoError(t, runtime.Close())

	ctx, err := runtime.Start(context.Background())
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
	runtime.Finish()

	_, err = runtime.Start(context.Background())
	assert.ErrorIs(t, err, ErrEngineStarted)
}

func TestRuntimeOffset(t *testing.T) {
	runtime := NewRuntime(EngineConfig{State: types.OpaqueStateValue(`{"lsn":"0/10"}`)})
	offset, err := runtime.Offset()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lsn":"0/10"}`, string(offset))

	runtime.Commit(types.OpaqueStateValue(`{"lsn":"0/20"}`))
	offset, err = runtime.Offset()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lsn":"0/20"}`, string(offset))

	empty := NewRuntime(EngineConfig{})
	offset, err = empty.Offset()
	require.NoError(t, err)
	assert.Nil(t, offset)
}

func TestRuntimeCompletion(t *testing.T) {
	runtime := NewRuntime(EngineConfig{})
	ctx, err := runtime.Start(context.Background())
	require.NoError(t, err)

	failure := runtime.Completion(ctx, errors.New("socket closed"))
	assert.False(t, failure.Success)
	assert.ErrorContains(t, failure.AsError(), "socket closed")

	go func() {
		<-ctx.Done()
		runtime.Finish()
	}()
	require.NoError(t, runtime.Close())

	stopped := runtime.Completion(ctx, ctx.Err())
	assert.True(t, stopped.Success)
	assert.NoError(t, stopped.AsError())
}
