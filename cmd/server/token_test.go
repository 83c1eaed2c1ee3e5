package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natsume/internal/crypto"
)

func runToken(t *testing.T, args ...string) string {
	t.Helper()
	cmd, err := NewTokenCommand(nil)
	require.NoError(t, err)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestTokenDigest(t *testing.T) {
	out := runToken(t, "digest", "sync-secret")
	assert.Equal(t, crypto.TokenDigest("sync-secret")+"\n", out)
}

func TestTokenGenerate(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(runToken(t, "generate")), "\n")
	require.Len(t, lines, 2)

	secret := strings.TrimPrefix(lines[0], "secret: ")
	digest := strings.TrimPrefix(lines[1], "digest: ")
	assert.NotEmpty(t, secret)
	assert.Equal(t, crypto.TokenDigest(secret), digest)
}
