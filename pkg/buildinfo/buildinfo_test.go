package buildinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

func TestGet_Defaults(t *testing.T) {
	info := Get("redora-cli")

	if info.ServiceName != "redora-cli" {
		t.Errorf("ServiceName = %q, want redora-cli", info.ServiceName)
	}
	if info.Version != "dev" || info.Commit != "unknown" || info.BuildTime != "unknown" {
		t.Errorf("unexpected defaults: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	if got := String(); got != "dev (unknown, unknown)" {
		t.Errorf("String() = %q", got)
	}

	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = origVersion, origCommit, origBuildTime })

	Version, Commit, BuildTime = "v0.3.0", "4f1c2ab", "2026-10-01T09:00:00Z"
	if got, want := String(), "v0.3.0 (4f1c2ab, 2026-10-01T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler("redora-cli")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var info Info
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ServiceName != "redora-cli" {
		t.Errorf("service_name = %q", info.ServiceName)
	}
	if len(info.GoVersion) < 2 || info.GoVersion[:2] != "go" {
		t.Errorf("go_version = %q", info.GoVersion)
	}
}
