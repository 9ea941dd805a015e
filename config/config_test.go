package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmp := t.TempDir()
	os.Setenv("TFTP_DIR", filepath.Join(tmp, "tftp"))
	os.Setenv("JOURNAL_PATH", filepath.Join(tmp, "dhcpd.leases"))
	os.Setenv("CONTROL_SOCKET", filepath.Join(tmp, "dhcpd.sock"))
	defer func() {
		os.Unsetenv("TFTP_DIR")
		os.Unsetenv("JOURNAL_PATH")
		os.Unsetenv("CONTROL_SOCKET")
	}()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "8080", cfg.Metrics.Port)
	assert.Equal(t, 100, cfg.Journal.Threshold)
	assert.Equal(t, time.Second, cfg.Probe.Timeout)
	assert.Equal(t, "", cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoadWithEnvironment(t *testing.T) {
	tmp := t.TempDir()
	os.Setenv("METRICS_PORT", "9090")
	os.Setenv("TFTP_DIR", filepath.Join(tmp, "tftp"))
	os.Setenv("JOURNAL_PATH", filepath.Join(tmp, "dhcpd.leases"))
	os.Setenv("CONTROL_SOCKET", filepath.Join(tmp, "dhcpd.sock"))
	defer func() {
		os.Unsetenv("METRICS_PORT")
		os.Unsetenv("TFTP_DIR")
		os.Unsetenv("JOURNAL_PATH")
		os.Unsetenv("CONTROL_SOCKET")
	}()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Metrics.Port)
}

func TestValidateRejectsMissingJournalPath(t *testing.T) {
	cfg := &Config{
		Network: NetworkConfig{ServerIP: "0.0.0.0", Interfaces: []string{"eth0"}},
		Parser:  ParserConfig{Path: "dhcpd.conf"},
		Control: ControlConfig{SocketPath: "dhcpd.sock"},
		Metrics: MetricsConfig{Port: "8080"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{
		Journal: JournalConfig{Path: "dhcpd.leases"},
		Network: NetworkConfig{ServerIP: "0.0.0.0", Interfaces: []string{"eth0"}},
		Parser:  ParserConfig{Path: "dhcpd.conf"},
		Control: ControlConfig{SocketPath: "dhcpd.sock"},
		Metrics: MetricsConfig{Port: "not-a-port"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestMetricsPortInt(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Port: "8080"}}
	port, err := cfg.MetricsPortInt()
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	cfg.Metrics.Port = "bad"
	_, err = cfg.MetricsPortInt()
	assert.Error(t, err)
}

func TestEnsureDirectoriesCreatesMissing(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		TFTP:    TFTPConfig{Dir: filepath.Join(tmp, "tftp")},
		Journal: JournalConfig{Path: filepath.Join(tmp, "journal", "dhcpd.leases")},
		Control: ControlConfig{SocketPath: filepath.Join(tmp, "ctl", "dhcpd.sock")},
	}

	err := cfg.ensureDirectories()
	require.NoError(t, err)
	assert.DirExists(t, cfg.TFTP.Dir)
	assert.DirExists(t, filepath.Dir(cfg.Journal.Path))
	assert.DirExists(t, filepath.Dir(cfg.Control.SocketPath))
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")
	assert.Equal(t, "test_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTING_VAR", "default"))

	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("NON_EXISTING_INT", 7))

	os.Setenv("TEST_DUR", "2s")
	defer os.Unsetenv("TEST_DUR")
	assert.Equal(t, 2*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NON_EXISTING_DUR", time.Minute))
}
