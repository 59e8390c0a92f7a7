package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagnotify/internal/listener"
	"tagnotify/internal/wire"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tagnotifyd "), out)
}

func TestSendDeliversDatagram(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "tn.sock")
	l, err := listener.Listen(sock, listener.DefaultMode)
	require.NoError(t, err)
	defer l.Close()

	_, err = run(t, "send", "--socket", sock, "--tag", "volume", "--value", "60")
	require.NoError(t, err)

	buf := make([]byte, wire.MaxDatagram)
	n, err := l.Receive(buf)
	require.NoError(t, err)
	req, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "volume", req.Tag)
	assert.Nil(t, req.Body, "unset --body must be omitted")
	require.NotNil(t, req.Value)
	assert.Equal(t, int32(60), *req.Value)
}

func TestSendRequiresTag(t *testing.T) {
	_, err := run(t, "send", "--socket", "/nonexistent.sock")
	assert.Error(t, err)
}

func TestCheckReportsEffectiveConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tagnotify.toml")
	require.NoError(t, os.WriteFile(p, []byte("[notify]\nduration = \"3s\"\n"), 0o600))

	out, err := run(t, "check", "--config", p, "--socket", "/tmp/x.sock")
	require.NoError(t, err)
	assert.Contains(t, out, "socket:   /tmp/x.sock")
	assert.Contains(t, out, "duration: 3s")
	assert.Contains(t, out, "config ok")
}

func TestCheckRejectsUnknownKey(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tagnotify.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"notfy":{}}`), 0o600))
	_, err := run(t, "check", "--config", p)
	assert.Error(t, err)
}

func TestDurationFlagOverrides(t *testing.T) {
	so := &serveOpts{g: &globalOpts{}}
	cmd := &cobra.Command{Use: "serve"}
	so.bind(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"-t", "750"}))
	ov := so.overrides(cmd)
	require.NotNil(t, ov.Duration)
	assert.Equal(t, 750*time.Millisecond, *ov.Duration)

	unset := &serveOpts{g: &globalOpts{}}
	bare := &cobra.Command{Use: "serve"}
	unset.bind(bare)
	require.NoError(t, bare.Flags().Parse(nil))
	assert.Nil(t, unset.overrides(bare).Duration, "unset -t leaves the config value")
}
