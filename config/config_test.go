package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args []string) Config {
	t.Helper()
	var captured Config
	cmd := NewRootCommand("test", func(c Config) ExitCode {
		captured = c
		return ExitOK
	})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return captured
}

func TestDefaults_AppliedWhenNoFlagsGiven(t *testing.T) {
	cfg := execute(t, nil)
	require.Equal(t, 8008, cfg.BeemsgPort)
	require.Equal(t, 8010, cfg.GRPCPort)
	require.Equal(t, 12, cfg.ConnectionLimit)
	require.Equal(t, "stderr", cfg.LogTarget)
}

func TestFlags_OverrideDefaults(t *testing.T) {
	cfg := execute(t, []string{"--beemsg-port=9000", "--grpc-port=9001", "--auth-disable", "--connection-limit=4"})
	require.Equal(t, 9000, cfg.BeemsgPort)
	require.Equal(t, 9001, cfg.GRPCPort)
	require.True(t, cfg.AuthDisable)
	require.Equal(t, 4, cfg.ConnectionLimit)
}

func TestConfigFile_FillsUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mgmtd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("beemsg_port: 9500\ngrpc_port: 9501\n"), 0o644))

	cfg := execute(t, []string{"--config-file=" + path})
	require.Equal(t, 9500, cfg.BeemsgPort)
	require.Equal(t, 9501, cfg.GRPCPort)
}

func TestConfigFile_ExplicitFlagStillWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mgmtd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("beemsg_port: 9500\n"), 0o644))

	cfg := execute(t, []string{"--config-file=" + path, "--beemsg-port=7000"})
	require.Equal(t, 7000, cfg.BeemsgPort)
}

func TestValidate_RequiresTLSFilesUnlessDisabled(t *testing.T) {
	cfg := defaults()
	require.Error(t, cfg.Validate())

	cfg.TLSDisable = true
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogTarget(t *testing.T) {
	cfg := defaults()
	cfg.TLSDisable = true
	cfg.LogTarget = "syslog"
	require.Error(t, cfg.Validate())
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, ExitOK, ExitCodeFor(nil))
}
