package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathKeepsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Default() {
		t.Fatalf("Load(\"\") = %+v, want defaults", got)
	}
	if got.HTTP.Addr != ":8080" || got.HTTP.ReadTimeoutMs != 30000 {
		t.Fatalf("defaults = %+v", got.HTTP)
	}
	if !got.Observer.Enabled || got.Observer.QueueSize != 16 {
		t.Fatalf("observer defaults = %+v", got.Observer)
	}
}

func TestLoad_OverlayWinsOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
http:
  addr: "127.0.0.1:9090"
observer:
  enabled: false
events:
  dir: /var/lib/game/events
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HTTP.Addr != "127.0.0.1:9090" {
		t.Errorf("addr = %q", got.HTTP.Addr)
	}
	if got.HTTP.ReadTimeoutMs != 30000 {
		t.Errorf("absent key lost its default: %d", got.HTTP.ReadTimeoutMs)
	}
	if got.Observer.Enabled {
		t.Error("observer.enabled override lost")
	}
	if got.Observer.QueueSize != 16 {
		t.Errorf("queue size = %d, want default 16", got.Observer.QueueSize)
	}
	if got.Events.Dir != "/var/lib/game/events" {
		t.Errorf("events dir = %q", got.Events.Dir)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing overlay file must fail")
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("http: [unclosed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed overlay must fail")
	}
}
