package version

import (
	"runtime"
	"strings"
	"testing"
)

func withVars(t *testing.T, v, commit, date, dirty string) {
	t.Helper()
	ov, oc, od, odi := Version, Commit, Date, Dirty
	Version, Commit, Date, Dirty = v, commit, date, dirty
	t.Cleanup(func() { Version, Commit, Date, Dirty = ov, oc, od, odi })
}

func TestGet(t *testing.T) {
	withVars(t, "1.2.0", "abc123", "2026-03-01T00:00:00Z", "true")

	info := Get()
	if info.Version != "1.2.0" || info.Commit != "abc123" {
		t.Errorf("Get() = %+v", info)
	}
	if !info.Dirty {
		t.Error("Dirty = false, want true")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestInfo_Formats(t *testing.T) {
	tests := []struct {
		name      string
		info      Info
		wantShort string
		wantStr   string
	}{
		{"clean", Info{Version: "1.0.0", Commit: "c1", Date: "d"}, "1.0.0", "1.0.0 (c1) built d"},
		{"dirty", Info{Version: "1.0.0", Commit: "c1", Date: "d", Dirty: true}, "1.0.0-dirty", "1.0.0-dirty (c1) built d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Short(); got != tt.wantShort {
				t.Errorf("Short() = %q, want %q", got, tt.wantShort)
			}
			if got := tt.info.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestInfo_UserAgent(t *testing.T) {
	ua := Info{Version: "2.0.0"}.UserAgent()
	if !strings.Contains(ua, "LeadScout/2.0.0") {
		t.Errorf("UserAgent() = %q, want LeadScout/2.0.0", ua)
	}
}
