package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Conf holds server-level configuration loaded from YAML.
type Conf struct {
	// --- Identity ---
	ServerName string `yaml:"server_name"`
	Network    string `yaml:"network"`

	// --- Listeners ---
	Listen    string `yaml:"listen"`
	TLSListen string `yaml:"tls_listen"` // ircs; empty disables TLS
	TLSDomain string `yaml:"tls_domain"` // Let's Encrypt via autocert
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
	CertDir   string `yaml:"cert_dir"`

	// --- Scripts ---
	Scripts      []string `yaml:"scripts"`
	WatchScripts bool     `yaml:"watch_scripts"`
	StateFile    string   `yaml:"state_file"`
	HelpFile     string   `yaml:"help_file"` // "& topic" flat file; empty disables HELP
	MotdFile     string   `yaml:"motd_file"` // hot-reloaded; empty means no MOTD

	// --- Audit ---
	AuditEnabled  bool   `yaml:"audit_enabled"`
	AuditDatabase string `yaml:"audit_database"`

	// --- Oper ---
	// Hashes accept bcrypt ($2a$...) or the crypt(3) formats used by
	// classic ircd configs.
	Opers map[string]string `yaml:"opers"`

	// --- Admin web ---
	WebEnabled bool   `yaml:"web_enabled"`
	WebListen  string `yaml:"web_listen"`
	JWTSecret  string `yaml:"jwt_secret"`
	JWTExpiry  int    `yaml:"jwt_expiry"` // seconds
	AdminUser  string `yaml:"admin_user"`
	AdminHash  string `yaml:"admin_hash"`
}

// DefaultConf returns a Conf with working defaults.
func DefaultConf() *Conf {
	return &Conf{
		ServerName:    "irc.example.org",
		Network:       "ObsidianNet",
		Listen:        ":6667",
		CertDir:       "certs",
		WatchScripts:  false,
		AuditEnabled:  false,
		AuditDatabase: "audit.db",
		WebEnabled:    false,
		WebListen:     ":8443",
		JWTExpiry:     86400,
		AdminUser:     "admin",
	}
}

// LoadConf reads and parses a YAML config file. Script paths are
// resolved relative to the config file's directory.
func LoadConf(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	c := DefaultConf()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i, sp := range c.Scripts {
		if !filepath.IsAbs(sp) {
			c.Scripts[i] = filepath.Join(baseDir, sp)
		}
	}
	if c.StateFile != "" && !filepath.IsAbs(c.StateFile) {
		c.StateFile = filepath.Join(baseDir, c.StateFile)
	}
	if c.HelpFile != "" && !filepath.IsAbs(c.HelpFile) {
		c.HelpFile = filepath.Join(baseDir, c.HelpFile)
	}
	if c.MotdFile != "" && !filepath.IsAbs(c.MotdFile) {
		c.MotdFile = filepath.Join(baseDir, c.MotdFile)
	}
	if c.AuditDatabase != "" && !filepath.IsAbs(c.AuditDatabase) {
		c.AuditDatabase = filepath.Join(baseDir, c.AuditDatabase)
	}
	if c.CertDir != "" && !filepath.IsAbs(c.CertDir) {
		c.CertDir = filepath.Join(baseDir, c.CertDir)
	}

	return c, c.Validate()
}

// Validate checks the loaded config for obvious mistakes.
func (c *Conf) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server_name must not be empty")
	}
	if strings.ContainsAny(c.ServerName, " \t") {
		return fmt.Errorf("server_name %q must not contain whitespace", c.ServerName)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.WebEnabled && c.AdminHash == "" {
		return fmt.Errorf("web_enabled requires admin_hash")
	}
	return nil
}
