package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prism/internal/api/middleware"
	"Prism/internal/core/worker"
	"Prism/internal/storage"
	"Prism/internal/storage/disk"
	"Prism/internal/storage/factory"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := runCLI(t, "normalize", "/photos/cat.jpg?Width=300&format=webp&utm_source=mail")
	require.NoError(t, err)
	assert.Equal(t, "photos/cat.jpg/format=webp,width=300\n", out)
}

func TestNormalizeCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "normalize", "--json", "--accept", "image/avif,image/webp", "/a/b.png?format=auto")
	require.NoError(t, err)

	var got normalizeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "a/b.png", got.OriginalPath)
	assert.Equal(t, "/a/b.png*", got.EdgePattern)
	assert.Equal(t, got.OriginalPath+"/"+got.Key, got.Identity)
	assert.True(t, strings.HasPrefix(got.Key, "format="), "auto must resolve to a concrete format, got %q", got.Key)
	assert.NotContains(t, got.Key, "auto")
}

func TestNormalizeCommand_NoDirectives(t *testing.T) {
	out, err := runCLI(t, "normalize", "/cat.jpg?foo=bar")
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg/original\n", out)
}

func TestKeygenSignRoundTrip(t *testing.T) {
	jwkOut, err := runCLI(t, "keygen", "--kid", "test-key")
	require.NoError(t, err)
	assert.Contains(t, jwkOut, `"kid": "test-key"`)

	key, err := parseSigningKey(jwkOut)
	require.NoError(t, err)
	require.Len(t, key, 32)

	token, err := runCLI(t, "sign", "--signing-key", jwkOut, "--method", "delete", "/variants/photos/cat.jpg")
	require.NoError(t, err)

	verifier, err := middleware.NewSignatureVerifier(key, time.Second)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/variants/photos/cat.jpg", nil)
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	assert.NoError(t, verifier.Verify(req))

	req = httptest.NewRequest(http.MethodDelete, "/variants/photos/dog.jpg", nil)
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	assert.ErrorIs(t, verifier.Verify(req), middleware.ErrUnauthorized)
}

func TestSignCommand_RequiresKey(t *testing.T) {
	_, err := runCLI(t, "sign", "/transform/cat.jpg/original")
	assert.Error(t, err)
}

func TestParseSigningKey(t *testing.T) {
	key, err := parseSigningKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = parseSigningKey("plain-secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain-secret"), key)

	_, err = parseSigningKey("{not json")
	assert.Error(t, err)
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newServeCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--variants-backend", "disk", "--variants-dir", t.TempDir()}))
	require.NoError(t, bindFlags(cmd, nil))

	cfg, err := loadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.True(t, cfg.Worker.Persist)
	assert.Equal(t, worker.DefaultCacheControl, cfg.Worker.CacheControl)
	assert.EqualValues(t, worker.DefaultMaxPayloadBytes, cfg.Worker.MaxPayloadBytes)
	assert.Equal(t, 30*time.Second, cfg.Worker.Timeout)
	assert.True(t, cfg.Origin.ReadOnly)
	assert.Equal(t, 90*24*time.Hour, cfg.Variants.TTL)
	assert.EqualValues(t, 25<<20, cfg.OriginMaxBytes)
}

func TestLoadServerConfig_HumanizedSizes(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newServeCommand()
	require.NoError(t, cmd.Flags().Parse([]string{
		"--max-payload", "1MB",
		"--memory-limit", "512MiB",
		"--variants-disk-max-size", "2GB",
	}))
	require.NoError(t, bindFlags(cmd, nil))

	cfg, err := loadServerConfig()
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, cfg.Worker.MaxPayloadBytes)
	assert.EqualValues(t, 512<<20, cfg.MemoryLimit)
	assert.EqualValues(t, 2_000_000_000, cfg.Variants.MaxSizeBytes)
}

func TestLoadServerConfig_Env(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("PRISM_PERSIST", "false")
	t.Setenv("PRISM_CACHE_CONTROL", "public, max-age=60")

	cmd := newRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, bindFlags(serve, nil))

	cfg, err := loadServerConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Worker.Persist)
	assert.Equal(t, "public, max-age=60", cfg.Worker.CacheControl)
}

func TestLoadServerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad size", []string{"--max-payload", "lots"}},
		{"zero timeout", []string{"--timeout", "0s"}},
		{"shared disk dir", []string{
			"--origin-backend", "disk", "--origin-dir", "/srv/img",
			"--variants-backend", "disk", "--variants-dir", "/srv/img",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			cmd := newServeCommand()
			require.NoError(t, cmd.Flags().Parse(tt.args))
			require.NoError(t, bindFlags(cmd, nil))

			_, err := loadServerConfig()
			assert.Error(t, err)
		})
	}
}

func TestSameStore(t *testing.T) {
	tests := []struct {
		name string
		a, b factory.Config
		want bool
	}{
		{"memory never collides", factory.Config{Backend: "memory"}, factory.Config{Backend: "memory"}, false},
		{"different backends", factory.Config{Backend: "disk", Dir: "/x"}, factory.Config{Backend: "s3", Bucket: "x"}, false},
		{"same disk dir", factory.Config{Backend: "disk", Dir: "/x"}, factory.Config{Backend: "disk", Dir: "/x"}, true},
		{"same bucket different prefix", factory.Config{Backend: "s3", Bucket: "b", Prefix: "orig"}, factory.Config{Backend: "s3", Bucket: "b", Prefix: "var"}, false},
		{"same bucket", factory.Config{Backend: "aws", Bucket: "b"}, factory.Config{Backend: "AWS", Bucket: "b"}, true},
		{"same redis", factory.Config{Backend: "redis", RedisURL: "redis://r"}, factory.Config{Backend: "redis", RedisURL: "redis://r"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameStore(tt.a, tt.b))
		})
	}
}

func TestInvalidateCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := disk.New(disk.Config{BasePath: dir})
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"photos/cat.jpg/width=10", "photos/cat.jpg/original", "photos/dog.jpg/width=10"} {
		require.NoError(t, store.Put(ctx, key, []byte("x"), storage.PutOptions{ContentType: "image/jpeg"}))
	}

	out, err := runCLI(t, "invalidate", "--variants-backend", "disk", "--variants-dir", dir, "photos/cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photos/cat.jpg\t2\n", out)

	_, err = store.Get(ctx, "photos/dog.jpg/width=10")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "photos/cat.jpg/original")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRootCommand_EverySubcommandBuilds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	var root *cobra.Command
	require.NotPanics(t, func() { root = newRootCommand() })

	for _, name := range []string{"serve", "invalidate", "normalize", "sign", "keygen"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	for _, flag := range []string{"origin-max-size", "origin-disk-max-size", "variants-disk-max-size"} {
		assert.NotNil(t, serve.Flags().Lookup(flag), flag)
	}
}
