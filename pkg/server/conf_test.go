package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "obbyscriptd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	return path
}

func TestLoadConfDefaults(t *testing.T) {
	path := writeConf(t, "server_name: irc.test.net\n")
	c, err := LoadConf(path)
	if err != nil {
		t.Fatalf("LoadConf: %v", err)
	}
	if c.ServerName != "irc.test.net" {
		t.Errorf("server_name = %q", c.ServerName)
	}
	if c.Listen != ":6667" {
		t.Errorf("listen default = %q", c.Listen)
	}
	if c.JWTExpiry != 86400 {
		t.Errorf("jwt_expiry default = %d", c.JWTExpiry)
	}
}

func TestLoadConfResolvesScriptPaths(t *testing.T) {
	path := writeConf(t, `
server_name: irc.test.net
scripts:
  - scripts/main.obby
  - /abs/other.obby
state_file: state.db
`)
	c, err := LoadConf(path)
	if err != nil {
		t.Fatalf("LoadConf: %v", err)
	}
	base := filepath.Dir(path)
	if c.Scripts[0] != filepath.Join(base, "scripts/main.obby") {
		t.Errorf("relative script not resolved: %q", c.Scripts[0])
	}
	if c.Scripts[1] != "/abs/other.obby" {
		t.Errorf("absolute script mangled: %q", c.Scripts[1])
	}
	if c.StateFile != filepath.Join(base, "state.db") {
		t.Errorf("state_file not resolved: %q", c.StateFile)
	}
}

func TestConfValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Conf)
		ok   bool
	}{
		{"defaults", func(c *Conf) {}, true},
		{"empty server name", func(c *Conf) { c.ServerName = "" }, false},
		{"whitespace server name", func(c *Conf) { c.ServerName = "irc test" }, false},
		{"empty listen", func(c *Conf) { c.Listen = "" }, false},
		{"web without hash", func(c *Conf) { c.WebEnabled = true }, false},
		{"web with hash", func(c *Conf) { c.WebEnabled = true; c.AdminHash = "$2a$x" }, true},
	}
	for _, tc := range cases {
		c := DefaultConf()
		tc.mod(c)
		err := c.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestLoadConfRejectsBadYAML(t *testing.T) {
	path := writeConf(t, "server_name: [unclosed\n")
	if _, err := LoadConf(path); err == nil {
		t.Error("expected parse error")
	}
}
