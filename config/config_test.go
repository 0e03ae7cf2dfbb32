package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	for _, c := range []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "json",
			file: "quickdot.json",
			content: `{
				"log": {"stdout": false, "file": "/tmp/quickdot.log", "verbose": true, "json": true},
				"server": {"address": "::1", "port": 53, "metrics": "127.0.0.1:9153"},
				"upstream": {"urls": ["tls://dns.google", "udp://9.9.9.9"], "timeout": 1500},
				"cache": {"size": 128, "min_ttl": 5, "max_ttl": 600, "negative_ttl": 30, "clean_interval": 10}
			}`,
			check: func(t *testing.T, cfg *Config) {
				require.False(t, cfg.Log.STDOUT)
				require.Equal(t, "/tmp/quickdot.log", cfg.Log.File)
				require.True(t, cfg.Log.JSON)
				require.Equal(t, Cache{Size: 128, MinTTL: 5, MaxTTL: 600, NegativeTTL: 30, CleanInterval: 10}, cfg.Cache)
				require.Equal(t, 10*time.Second, cfg.Cache.CleanEvery())
				require.Equal(t, Server{Address: "::1", Port: 53, Metrics: "127.0.0.1:9153"}, cfg.Server)
				require.Equal(t, []string{"tls://dns.google", "udp://9.9.9.9"}, cfg.Upstream.URLs)
				require.Equal(t, 1500*time.Millisecond, cfg.Upstream.TimeoutDuration())

				lc := cfg.Log.LogConfig()
				require.Equal(t, "debug", lc.Level)
				require.True(t, lc.JsonFormat)
				require.Equal(t, 10, lc.MaxSize)
			},
		},
		{
			name:    "yaml partial",
			file:    "quickdot.yaml",
			content: "cache:\n  size: 64\n",
			check: func(t *testing.T, cfg *Config) {
				d := Default()
				require.Equal(t, 64, cfg.Cache.Size)
				require.Equal(t, d.Cache.MaxTTL, cfg.Cache.MaxTTL)
				require.Equal(t, d.Cache.NegativeTTL, cfg.Cache.NegativeTTL)
				require.Equal(t, d.Log, cfg.Log)
				require.Equal(t, d.Server, cfg.Server)
				require.Equal(t, d.Upstream, cfg.Upstream)
			},
		},
		{
			name:    "string numbers",
			file:    "weak.json",
			content: `{"cache": {"size": "32"}}`,
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, 32, cfg.Cache.Size)
			},
		},
		{
			name:    "unknown key",
			file:    "unknown.json",
			content: `{"cache": {"size": 10, "persist": true}}`,
			wantErr: true,
		},
		{
			name:    "zero size",
			file:    "zero.json",
			content: `{"cache": {"size": 0}}`,
			wantErr: true,
		},
		{
			name:    "bad port",
			file:    "port.json",
			content: `{"server": {"port": 70000}}`,
			wantErr: true,
		},
		{
			name:    "zero timeout",
			file:    "timeout.json",
			content: `{"upstream": {"timeout": 0}}`,
			wantErr: true,
		},
		{
			name:    "min above max",
			file:    "ttl.json",
			content: `{"cache": {"min_ttl": 100, "max_ttl": 10}}`,
			wantErr: true,
		},
		{
			name:    "broken",
			file:    "broken.json",
			content: `{"cache": `,
			wantErr: true,
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.file)
			write(t, path, c.content)

			cfg, err := Load(path)
			if c.wantErr {
				require.Error(t, err)
				require.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			c.check(t, cfg)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.json"))
	require.Error(t, err)

	// no file in the working directory falls back to the defaults
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	write(t, filepath.Join(dir, "quickdot.json"), `{"cache": {"size": 9}}`)
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Cache.Size)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Cache.MinTTL = cfg.Cache.MaxTTL
	require.NoError(t, cfg.Validate())

	cfg.Cache.Size = -1
	require.Error(t, cfg.Validate())
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quickdot.json")
	write(t, path, `{"cache": {"size": 1}}`)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) {
			select {
			case got <- cfg:
			default:
			}
		})
	}()

	// the watcher starts asynchronously, keep writing until it reports
	require.Eventually(t, func() bool {
		write(t, path, `{"cache": {"size": 2048}}`)
		select {
		case cfg := <-got:
			return cfg.Cache.Size == 2048
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	// an invalid file is never applied
	write(t, path, `{"cache": {"size": 0}}`)
	drain := time.After(time.Second)
loop:
	for {
		select {
		case cfg := <-got:
			require.Equal(t, 2048, cfg.Cache.Size)
		case <-drain:
			break loop
		}
	}

	// other files in the directory are ignored
	write(t, filepath.Join(dir, "other.json"), `{"cache": {"size": 3}}`)
	select {
	case cfg := <-got:
		require.NotEqual(t, 3, cfg.Cache.Size)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
