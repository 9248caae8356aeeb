// Package config holds the settings that drive a bootstrap run.
//
// Default returns the stock values of an ov-node host (repository URL,
// install path, interpreter). Load overlays an optional YAML or JSONC file
// on top of them so operators can point the bootstrapper at a fork, a tag,
// or a different prefix without rebuilding.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/primezdev/ovnode-setup/internal/model"
)

// Config is the full set of bootstrap settings.
//
// Relative paths in VenvDir, RequirementsFile, Installer and the service
// working directory are resolved against InstallDir by the accessor methods.
type Config struct {
	// AppName names the application; it is used for the lock file and the
	// default systemd unit name.
	AppName string `yaml:"appName" json:"appName"`

	// InstallDir is the absolute directory the application source lives in.
	InstallDir string `yaml:"installDir" json:"installDir"`

	// Source selects git clone or tarball release download.
	Source model.SourceMode `yaml:"source" json:"source"`

	// Reinstall decides what happens when InstallDir already exists.
	// Empty means the per-source default (see model.DefaultReinstallPolicy).
	Reinstall model.ReinstallPolicy `yaml:"reinstall" json:"reinstall"`

	// RepoURL is the git remote used in git mode and by update.
	RepoURL string `yaml:"repoURL" json:"repoURL"`

	// Branch is checked out on clone and tracked on update.
	Branch string `yaml:"branch" json:"branch"`

	// ReleaseURL is the .tar.gz archive fetched in release mode.
	ReleaseURL string `yaml:"releaseURL" json:"releaseURL"`

	// Python is the system interpreter used to create the venv.
	Python string `yaml:"python" json:"python"`

	// VenvDir is the virtual environment directory.
	VenvDir string `yaml:"venvDir" json:"venvDir"`

	// RequirementsFile lists the Python dependencies, when present.
	RequirementsFile string `yaml:"requirementsFile" json:"requirementsFile"`

	// FallbackPackages are installed when RequirementsFile does not exist.
	FallbackPackages []string `yaml:"fallbackPackages" json:"fallbackPackages"`

	// OSPackages are installed with the system package manager.
	OSPackages []string `yaml:"osPackages" json:"osPackages"`

	// Installer is the Python entry point run at the end of the bootstrap.
	Installer string `yaml:"installer" json:"installer"`

	// Service configures the systemd unit written by install.
	Service ServiceConfig `yaml:"service" json:"service"`

	// OpenVPN configures where openvpn-install.sh comes from.
	OpenVPN OpenVPNConfig `yaml:"openvpn" json:"openvpn"`

	// ServicePort is the default SERVICE_PORT offered by install.
	ServicePort int `yaml:"servicePort" json:"servicePort"`

	// LogDir receives the JSON run log.
	LogDir string `yaml:"logDir" json:"logDir"`
}

// ServiceConfig describes the systemd unit for the application.
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	WorkingDir  string `yaml:"workingDir" json:"workingDir"`
	Entry       string `yaml:"entry" json:"entry"`
	UnitDir     string `yaml:"unitDir" json:"unitDir"`
	RestartSec  int    `yaml:"restartSec" json:"restartSec"`
}

// OpenVPNConfig locates the OpenVPN road-warrior installer script.
type OpenVPNConfig struct {
	ScriptURL  string `yaml:"scriptURL" json:"scriptURL"`
	ScriptPath string `yaml:"scriptPath" json:"scriptPath"`
}

// Default returns the settings of a stock ov-node install.
func Default() *Config {
	return &Config{
		AppName:          "ov-node",
		InstallDir:       "/opt/ov-node",
		Source:           model.SourceGit,
		RepoURL:          "https://github.com/primeZdev/ov-node.git",
		Branch:           "main",
		ReleaseURL:       "https://github.com/primeZdev/ov-node/archive/refs/heads/main.tar.gz",
		Python:           "/usr/bin/python3",
		VenvDir:          "venv",
		RequirementsFile: "requirements.txt",
		FallbackPackages: []string{
			"fastapi",
			"uvicorn",
			"psutil",
			"pydantic_settings",
			"python-dotenv",
			"colorama",
			"pexpect",
			"requests",
		},
		OSPackages: []string{"python3", "python3-venv", "python3-pip", "git", "curl", "wget"},
		Installer:  "installer.py",
		Service: ServiceConfig{
			Name:        "ov-node",
			Description: "OV-Node App",
			WorkingDir:  "core",
			Entry:       "app.py",
			UnitDir:     "/etc/systemd/system",
			RestartSec:  5,
		},
		OpenVPN: OpenVPNConfig{
			ScriptURL:  "https://git.io/vpn",
			ScriptPath: "/root/openvpn-install.sh",
		},
		ServicePort: 9090,
		LogDir:      "/var/log/ovnode-setup",
	}
}

// Load returns the defaults overlaid with the file at path.
// An empty path returns the defaults. Fields absent from the file keep
// their default values; list fields present in the file replace the default
// list entirely.
//
// Files ending in .yaml or .yml are parsed as YAML. Files ending in .json or
// .jsonc may contain comments and trailing commas.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc":
		// Strip // and /* */ comments and trailing commas first.
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return nil, model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("unsupported config file extension %q (valid: .yaml, .yml, .json, .jsonc)", ext))
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	return cfg, nil
}

// Validate checks the settings for values that would make a run fail
// halfway through. It returns a CLIError with ExitInvalidConfig.
//
// InstallDir is normalized with filepath.Clean first: a trailing slash
// ("/opt/ov-node/") would otherwise make filepath.Dir return the directory
// itself, and every sibling path derived from it (lock file, release
// staging directory) would land inside the install directory.
func (c *Config) Validate() error {
	var problems []string

	if c.InstallDir != "" {
		c.InstallDir = filepath.Clean(c.InstallDir)
	}

	if c.AppName == "" {
		problems = append(problems, "appName must not be empty")
	}
	if c.InstallDir == "" {
		problems = append(problems, "installDir must not be empty")
	} else if !filepath.IsAbs(c.InstallDir) {
		problems = append(problems, fmt.Sprintf("installDir %q must be an absolute path", c.InstallDir))
	} else if filepath.Clean(c.InstallDir) == "/" {
		problems = append(problems, "installDir must not be the filesystem root")
	}
	if !c.Source.IsValid() {
		problems = append(problems, fmt.Sprintf("invalid source %q (valid: git, release)", c.Source))
	}
	if c.Reinstall != "" && !c.Reinstall.IsValid() {
		problems = append(problems, fmt.Sprintf("invalid reinstall policy %q (valid: wipe, reuse)", c.Reinstall))
	}
	if c.Source == model.SourceGit && c.RepoURL == "" {
		problems = append(problems, "repoURL is required for git source")
	}
	if c.Source == model.SourceRelease && c.ReleaseURL == "" {
		problems = append(problems, "releaseURL is required for release source")
	}
	if c.Python == "" {
		problems = append(problems, "python must not be empty")
	}
	if len(c.FallbackPackages) == 0 {
		problems = append(problems, "fallbackPackages must list at least one package")
	}
	if c.Installer == "" {
		problems = append(problems, "installer must not be empty")
	}
	if c.ServicePort < 1 || c.ServicePort > 65535 {
		problems = append(problems, fmt.Sprintf("servicePort %d out of range (1-65535)", c.ServicePort))
	}
	if c.Service.Name == "" {
		problems = append(problems, "service.name must not be empty")
	}

	if len(problems) > 0 {
		return model.NewCLIError(model.ExitInvalidConfig,
			"invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// ReinstallPolicy returns the effective policy, applying the per-source
// default when none is configured.
func (c *Config) ReinstallPolicy() model.ReinstallPolicy {
	if c.Reinstall != "" {
		return c.Reinstall
	}
	return model.DefaultReinstallPolicy(c.Source)
}

// VenvPath returns the absolute virtual environment directory.
func (c *Config) VenvPath() string {
	return c.resolve(c.VenvDir)
}

// VenvPython returns the interpreter inside the virtual environment.
func (c *Config) VenvPython() string {
	return filepath.Join(c.VenvPath(), "bin", "python")
}

// RequirementsPath returns the absolute requirements file path.
func (c *Config) RequirementsPath() string {
	return c.resolve(c.RequirementsFile)
}

// InstallerPath returns the absolute installer entry point.
func (c *Config) InstallerPath() string {
	return c.resolve(c.Installer)
}

// ServiceWorkingDir returns the absolute working directory of the unit.
func (c *Config) ServiceWorkingDir() string {
	return c.resolve(c.Service.WorkingDir)
}

// EnvFile returns the application's .env path.
func (c *Config) EnvFile() string {
	return filepath.Join(c.InstallDir, ".env")
}

// EnvExampleFile returns the application's .env.example path.
func (c *Config) EnvExampleFile() string {
	return filepath.Join(c.InstallDir, ".env.example")
}

// LockPath returns the advisory lock file guarding InstallDir. It lives next
// to InstallDir so that wiping the directory does not drop the lock.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(filepath.Clean(c.InstallDir)), "."+c.AppName+".lock")
}

func (c *Config) resolve(p string) string {
	if p == "" {
		return c.InstallDir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.InstallDir, p)
}
