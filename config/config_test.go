package config

import (
	"testing"
	"time"
)

func TestParseTargetsFirstDefinesSchemeHostPort(t *testing.T) {
	targets, err := ParseTargets([]string{"http://example.com:8080/a", "/b", "/c?x=1"})
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("len(targets) = %d, want 3", len(targets))
	}
	for i, want := range []string{"/a", "/b", "/c?x=1"} {
		if targets[i].Path != want {
			t.Fatalf("targets[%d].Path = %q, want %q", i, targets[i].Path, want)
		}
		if targets[i].Host != "example.com" || targets[i].Port != "8080" {
			t.Fatalf("targets[%d] host/port = %s:%s, want example.com:8080", i, targets[i].Host, targets[i].Port)
		}
	}
}

func TestParseTargetUnix(t *testing.T) {
	target, err := ParseTarget("unix:/var/run/app.sock")
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	if !target.Unix || target.Host != "/var/run/app.sock" {
		t.Fatalf("unix target = %+v", target)
	}
}

func TestResolveHeadersHostOverridesAuthority(t *testing.T) {
	authority, rest := ResolveHeaders("original.example.com", []Header{
		{Name: ":host", Value: "override.example.com"},
		{Name: "x-custom", Value: "1"},
	})
	if authority != "override.example.com" {
		t.Fatalf("authority = %q, want override.example.com", authority)
	}
	if len(rest) != 1 || rest[0].Name != "x-custom" {
		t.Fatalf("rest = %+v, want [{x-custom 1}]", rest)
	}
}

func TestValidateRejectsExplicitZeroRate(t *testing.T) {
	cfg := &Config{Nthreads: 1, Nclients: 1, RateSet: true, Rate: 0, Targets: []Target{{Host: "h"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted -r 0")
	}
}

func TestValidateRejectsQPSZeroWithDuration(t *testing.T) {
	cfg := &Config{Nthreads: 1, Nclients: 1, QPSSet: true, QPS: 0, Duration: 1, Targets: []Target{{Host: "h"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted --qps 0 with -D")
	}
}

func TestValidateRejectsRateAndDurationTogether(t *testing.T) {
	cfg := &Config{Nthreads: 1, Nclients: 5, Rate: 5, Duration: 1, Targets: []Target{{Host: "h"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted -r with -D")
	}
}

func TestValidateRateBounds(t *testing.T) {
	cfg := &Config{Nthreads: 4, Nclients: 10, Rate: 2, Targets: []Target{{Host: "h"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted rate < nthreads")
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := &Config{Nthreads: 2, Nclients: 10, Targets: []Target{{Host: "h"}}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate rejected valid config: %v", err)
	}
}

func TestResolveNreqsQPSMode(t *testing.T) {
	cfg := &Config{QPS: 200, Duration: 5 * time.Second}
	if got := cfg.ResolveNreqs(); got != 1000 {
		t.Fatalf("ResolveNreqs() = %d, want 1000", got)
	}
}
