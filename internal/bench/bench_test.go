package bench

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRequiresHost(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestNewAcceptsHost(t *testing.T) {
	c, err := New(Options{Host: "bench.lan"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.client != nil {
		t.Fatal("expected lazy connection, got client set before first use")
	}
}

func TestBuildClientConfigRequiresAuthMethod(t *testing.T) {
	c, err := New(Options{Host: "bench.lan", InsecureIgnoreHost: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.buildClientConfig(); err == nil {
		t.Fatal("expected error when no auth method is configured")
	}
}

func TestBuildClientConfigAcceptsPassword(t *testing.T) {
	c, err := New(Options{Host: "bench.lan", User: "tester", Password: "secret", InsecureIgnoreHost: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, err := c.buildClientConfig()
	if err != nil {
		t.Fatalf("buildClientConfig: %v", err)
	}
	if cfg.User != "tester" {
		t.Fatalf("User = %q, want tester", cfg.User)
	}
	if len(cfg.Auth) != 1 {
		t.Fatalf("len(Auth) = %d, want 1", len(cfg.Auth))
	}
}

func TestHostKeyCallbackRequiresSomeSource(t *testing.T) {
	c, err := New(Options{Host: "bench.lan"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Setenv("HOME", t.TempDir())
	if _, err := c.hostKeyCallback(); err == nil {
		t.Fatal("expected error with no known_hosts file and InsecureIgnoreHost unset")
	}
}

func TestHostKeyCallbackInsecureIgnoreHost(t *testing.T) {
	c, err := New(Options{Host: "bench.lan", InsecureIgnoreHost: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.hostKeyCallback(); err != nil {
		t.Fatalf("hostKeyCallback: %v", err)
	}
}

func TestResetRequiresCommand(t *testing.T) {
	c, err := New(Options{Host: "bench.lan"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Reset(context.Background()); err == nil {
		t.Fatal("expected error when no reset command is configured")
	}
}

func TestAgentAuthReturnsNilWithoutSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if auth := agentAuth(); auth != nil {
		t.Fatal("expected nil auth method with no SSH_AUTH_SOCK set")
	}
}

func TestPublicKeyAuthRejectsMissingFile(t *testing.T) {
	if _, err := publicKeyAuth(filepath.Join(t.TempDir(), "missing_key"), ""); err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestPublicKeyAuthRejectsMalformedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_key")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write temp key: %v", err)
	}
	if _, err := publicKeyAuth(path, ""); err == nil {
		t.Fatal("expected error for malformed key file")
	}
}
