package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"tripbot/config"
	"tripbot/model"
	"tripbot/util/hash"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"hash-password", "s3cret"})
	require.NoError(t, root.Execute())

	h := strings.TrimSpace(out.String())
	require.True(t, hash.Check(h, "s3cret"))
}

func TestSubcommands(t *testing.T) {
	root := NewRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"serve", "migrate", "set-webhook", "worker", "hash-password"})
}

func TestBuild_MemoryLedgerAndLocalQueue(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.App{BotToken: "t", JWTSecret: "j", TaskWorkers: 1, TaskBuffer: 1}

	a, err := build(ctx, cfg, log, queueLocal)
	require.NoError(t, err)
	defer a.close(ctx)

	require.NoError(t, a.ready())
	u, created, err := a.users.Bootstrap(ctx, 1, model.Profile{FirstName: "Ada"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(10), u.Credits)
}
