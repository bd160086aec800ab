package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ypgattendance/internal/app"
	"ypgattendance/internal/config"
	"ypgattendance/internal/models"
)

func newTestCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	core, err := app.NewCore(config.Default(), app.MemoryStores(), nil, zap.NewNop())
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return &cli{core: core, out: out}, out
}

func TestSetupPinAndStatus(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()

	require.NoError(t, c.run(ctx, []string{"pin-status"}))
	require.Contains(t, out.String(), "not configured")

	require.Error(t, c.run(ctx, []string{"setup-pin", "12a4"}))
	require.NoError(t, c.run(ctx, []string{"setup-pin", "2025"}))
	require.Error(t, c.run(ctx, []string{"setup-pin", "1111"}))

	out.Reset()
	require.NoError(t, c.run(ctx, []string{"pin-status"}))
	require.Contains(t, out.String(), "configured (since")
}

func TestClearAttempts(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		rec, err := c.core.Ledger.GetOrCreate(ctx, id, models.KindPassword)
		require.NoError(t, err)
		require.NoError(t, c.core.Ledger.RecordFailure(ctx, rec))
	}

	require.NoError(t, c.run(ctx, []string{"clear-attempts", "-identifier", "alice", "-kind", "username_password"}))
	require.Contains(t, out.String(), "cleared 1 ")

	out.Reset()
	require.NoError(t, c.run(ctx, []string{"attempts"}))
	require.Contains(t, out.String(), "bob")
	require.NotContains(t, out.String(), "alice")

	require.Error(t, c.run(ctx, []string{"clear-attempts", "-kind", "sms"}))
}

func TestCreateUser(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()

	require.Error(t, c.run(ctx, []string{"create-user", "-username", "sec"}))
	require.Error(t, c.run(ctx, []string{"create-user", "-username", "sec", "-password", "weak"}))
	require.NoError(t, c.run(ctx, []string{"create-user", "-username", "sec", "-password", "Str0ng!pass", "-role", "Secretary"}))
	require.Contains(t, out.String(), `created user "sec"`)
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newTestCLI(t)
	require.Error(t, c.run(context.Background(), []string{"frobnicate"}))
}
