package node

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/envfile"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/port"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

const envExample = "# OV-Node settings\nSERVICE_PORT=9090\nAPI_KEY=changeme\nDEBUG=false\n"

type fakeAsker struct {
	answers map[string]string
	confirm bool
	asked   []string
}

func (f *fakeAsker) Ask(question, def string) (string, error) {
	f.asked = append(f.asked, question)
	if a, ok := f.answers[question]; ok {
		return a, nil
	}
	return def, nil
}

func (f *fakeAsker) Confirm(question string, def bool) (bool, error) {
	f.asked = append(f.asked, question)
	return f.confirm, nil
}

// testConfig relocates every host path of the default configuration into
// temp directories and creates an installed checkout.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.InstallDir = filepath.Join(root, "opt", "ov-node")
	cfg.Service.UnitDir = filepath.Join(root, "etc", "systemd", "system")
	cfg.OpenVPN.ScriptPath = filepath.Join(root, "root", "openvpn-install.sh")
	cfg.OpenVPN.ScriptURL = "http://127.0.0.1:1/never-contacted"

	free, err := port.NewScanner().FindAvailablePort(53000, 53100, "tcp")
	require.NoError(t, err)
	cfg.ServicePort = free

	require.NoError(t, os.MkdirAll(cfg.InstallDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallDir, "openvpn-install.sh"), []byte("#!/bin/bash\n"), 0755))
	return cfg
}

func newNode(t *testing.T, cfg *config.Config, rec *sysexec.Recorder, asker Asker) (*Node, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	n := New(cfg, rec, nil, asker, nil, &out)
	n.EnvBackup = filepath.Join(t.TempDir(), "ovnode_env_backup")
	return n, &out
}

func TestInstall(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvExampleFile(), []byte(envExample), 0644))

	rec := sysexec.NewRecorder()
	asker := &fakeAsker{answers: map[string]string{"OV-Node API key": "my-key"}}
	n, out := newNode(t, cfg, rec, asker)

	res, err := n.Install(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cfg.ServicePort, res.ServicePort)
	assert.Equal(t, "my-key", res.APIKey)
	assert.True(t, res.EnvWritten)
	assert.Equal(t, []string{"OV-Node service port", "OV-Node API key"}, asker.asked)
	assert.Contains(t, out.String(), "Using openvpn-install.sh from project directory")

	env, err := os.ReadFile(cfg.EnvFile())
	require.NoError(t, err)
	want := "# OV-Node settings\nSERVICE_PORT=" + strconv.Itoa(cfg.ServicePort) + "\nAPI_KEY=my-key\nDEBUG=false\n"
	assert.Equal(t, want, string(env))

	assert.FileExists(t, cfg.OpenVPN.ScriptPath)
	assert.FileExists(t, filepath.Join(cfg.Service.UnitDir, "ov-node.service"))
	if diff := cmp.Diff([]string{
		"bash " + cfg.OpenVPN.ScriptPath,
		"systemctl daemon-reload",
		"systemctl enable ov-node",
		"systemctl start ov-node",
	}, rec.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall_DefaultAPIKeyIsUUID(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvExampleFile(), []byte(envExample), 0644))

	n, _ := newNode(t, cfg, sysexec.NewRecorder(), &fakeAsker{})
	res, err := n.Install(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.APIKey, 36)
	assert.Equal(t, res.APIKey, envfile.Lookup(cfg.EnvFile(), "API_KEY"))
}

// TestInstall_KeepsExistingPort verifies the port of a previous install is
// offered as the default answer.
func TestInstall_KeepsExistingPort(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvExampleFile(), []byte(envExample), 0644))

	prev, err := port.NewScanner().FindAvailablePort(53101, 53200, "tcp")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.EnvFile(), []byte("SERVICE_PORT="+strconv.Itoa(prev)+"\nAPI_KEY=old\n"), 0600))

	n, _ := newNode(t, cfg, sysexec.NewRecorder(), &fakeAsker{})
	res, err := n.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prev, res.ServicePort)
	assert.Equal(t, strconv.Itoa(prev), envfile.Lookup(cfg.EnvFile(), "SERVICE_PORT"))
}

// TestInstall_MissingTemplateWarns verifies a checkout without .env.example
// still gets its service installed.
func TestInstall_MissingTemplateWarns(t *testing.T) {
	cfg := testConfig(t)
	rec := sysexec.NewRecorder()
	n, out := newNode(t, cfg, rec, &fakeAsker{})

	res, err := n.Install(context.Background())
	require.NoError(t, err)
	assert.False(t, res.EnvWritten)
	assert.NoFileExists(t, cfg.EnvFile())
	assert.Contains(t, out.String(), "Warning: .env.example not found")
	assert.Contains(t, rec.Commands(), "systemctl start ov-node")
}

func TestInstall_InvalidPort(t *testing.T) {
	cfg := testConfig(t)
	rec := sysexec.NewRecorder()
	n, _ := newNode(t, cfg, rec, &fakeAsker{answers: map[string]string{"OV-Node service port": "http"}})

	_, err := n.Install(context.Background())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
	assert.NotContains(t, rec.Commands(), "systemctl daemon-reload")
}

func TestInstall_BusyPortWarns(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	busy := listener.Addr().(*net.TCPAddr).Port

	cfg := testConfig(t)
	n, out := newNode(t, cfg, sysexec.NewRecorder(), &fakeAsker{answers: map[string]string{"OV-Node service port": strconv.Itoa(busy)}})

	res, err := n.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, busy, res.ServicePort)
	assert.Contains(t, out.String(), "already in use")
}

func TestInstall_NotBootstrapped(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.InstallDir))

	rec := sysexec.NewRecorder()
	n, _ := newNode(t, cfg, rec, &fakeAsker{})
	_, err := n.Install(context.Background())
	require.Error(t, err)
	assert.Empty(t, rec.Commands())
}

func TestUpdate_GitCheckout(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.InstallDir, ".git"), 0755))
	require.NoError(t, os.WriteFile(cfg.EnvFile(), []byte("API_KEY=keep-me\n"), 0600))

	rec := sysexec.NewRecorder()
	n, _ := newNode(t, cfg, rec, &fakeAsker{})

	res, err := n.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "synced", res.Action)
	assert.True(t, res.EnvRestored)
	assert.Equal(t, venv.FromFallback, res.Dependencies.Source)
	assert.Equal(t, "keep-me", envfile.Lookup(cfg.EnvFile(), "API_KEY"))
	assert.NoFileExists(t, n.EnvBackup)

	pip := filepath.Join(cfg.VenvPath(), "bin", "pip")
	want := []string{
		"git -C " + cfg.InstallDir + " fetch --all",
		"git -C " + cfg.InstallDir + " reset --hard origin/main",
		"git -C " + cfg.InstallDir + " pull origin main",
		"/usr/bin/python3 -m venv " + cfg.VenvPath(),
		pip + " install --upgrade pip",
		pip + " install fastapi uvicorn psutil pydantic_settings python-dotenv colorama pexpect requests",
		"systemctl restart ov-node",
	}
	if diff := cmp.Diff(want, rec.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

// TestUpdate_NotAGitCheckout verifies a directory without .git (a release
// install) is replaced by a clone while .env survives.
func TestUpdate_NotAGitCheckout(t *testing.T) {
	cfg := testConfig(t)
	stale := filepath.Join(cfg.InstallDir, "stale.py")
	require.NoError(t, os.WriteFile(stale, nil, 0644))
	require.NoError(t, os.WriteFile(cfg.EnvFile(), []byte("SERVICE_PORT=7000\n"), 0600))

	rec := sysexec.NewRecorder()
	rec.Do("git clone", func(cmd sysexec.Command) {
		_ = os.MkdirAll(filepath.Join(cmd.Args[len(cmd.Args)-1], ".git"), 0755)
	})
	n, _ := newNode(t, cfg, rec, &fakeAsker{})

	res, err := n.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recloned", res.Action)
	assert.NoFileExists(t, stale)
	assert.Equal(t, "7000", envfile.Lookup(cfg.EnvFile(), "SERVICE_PORT"))
	assert.Equal(t, "git clone --branch main https://github.com/primeZdev/ov-node.git "+cfg.InstallDir, rec.Commands()[0])
}

func TestUpdate_Missing(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.InstallDir))

	rec := sysexec.NewRecorder()
	n, _ := newNode(t, cfg, rec, &fakeAsker{})

	res, err := n.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cloned", res.Action)
	assert.False(t, res.EnvRestored)
}

func TestUpdate_CloneFailureKeepsBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvFile(), []byte("API_KEY=keep-me\n"), 0600))

	rec := sysexec.NewRecorder().On("git clone", sysexec.Result{Stderr: "fatal: unable to access"}, errors.New("exit status 128"))
	n, _ := newNode(t, cfg, rec, &fakeAsker{})

	_, err := n.Update(context.Background())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitSourceFetchFailed, cliErr.Code)
	assert.Equal(t, "keep-me", envfile.Lookup(n.EnvBackup, "API_KEY"))
	assert.NotContains(t, rec.Commands(), "systemctl restart ov-node")
}

func TestUninstall_Declined(t *testing.T) {
	rec := sysexec.NewRecorder()
	n, _ := newNode(t, testConfig(t), rec, &fakeAsker{confirm: false})

	err := n.Uninstall(context.Background(), false)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitUserCancelled, cliErr.Code)
	assert.Empty(t, rec.Commands())
}

func TestUninstall(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.OpenVPN.ScriptPath), 0755))
	require.NoError(t, os.WriteFile(cfg.OpenVPN.ScriptPath, []byte("#!/bin/bash\n"), 0755))

	rec := sysexec.NewRecorder().On("bash ", sysexec.Result{Stdout: "\nOpenVPN removed!\n"}, nil)
	asker := &fakeAsker{}
	n, _ := newNode(t, cfg, rec, asker)

	require.NoError(t, n.Uninstall(context.Background(), true))
	assert.Empty(t, asker.asked, "force skips the confirmation")
	assert.Equal(t, []string{
		"bash " + cfg.OpenVPN.ScriptPath,
		"systemctl stop ov-node",
		"systemctl disable ov-node",
		"systemctl daemon-reload",
	}, rec.Commands())
	assert.Equal(t, "3\ny\n", rec.Stdin(0))
}

func TestUninstall_OpenVPNFailureKeepsService(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.OpenVPN.ScriptPath), 0755))
	require.NoError(t, os.WriteFile(cfg.OpenVPN.ScriptPath, []byte("#!/bin/bash\n"), 0755))

	rec := sysexec.NewRecorder()
	n, _ := newNode(t, cfg, rec, &fakeAsker{confirm: true})

	err := n.Uninstall(context.Background(), false)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitOpenVPNFailed, cliErr.Code)
	assert.Equal(t, []string{"bash " + cfg.OpenVPN.ScriptPath}, rec.Commands())
}
