package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/dashboard-news/internal/config"
	"github.com/Sternrassler/dashboard-news/internal/testutil"
	"github.com/disintegration/imaging"
)

var envKeys = []string{
	"SUMO_UID", "SUMO_KEY", "SUMO_END", "EXPORTDIR", "OUTPUTDIR", "OUTPUTFILE",
	"TIMEZONE", "TZ", "FORMAT", "TRIES", "SLEEPTIME", "CONCURRENCY", "DPI", "IMAGE_WIDTH",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"PUBLISH_ENDPOINT", "PUBLISH_ACCESS_KEY", "PUBLISH_SECRET_KEY", "PUBLISH_BUCKET", "PUBLISH_SSL", "PUBLISH_PREFIX",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(640, 360, color.NRGBA{R: 10, G: 160, B: 90, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type workspace struct {
	config    string
	exportDir string
	outputDir string
}

func writeConfig(t *testing.T, endpoint string, dashboards ...string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		config:    filepath.Join(dir, "news.ini"),
		exportDir: filepath.Join(dir, "export"),
		outputDir: filepath.Join(dir, "news"),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Default]\n")
	fmt.Fprintf(&b, "SUMO_UID = %s\nSUMO_KEY = %s\nSUMO_END = %s\n", testutil.AccessID, testutil.AccessKey, endpoint)
	fmt.Fprintf(&b, "EXPORTDIR = %s\nOUTPUTDIR = %s\nOUTPUTFILE = weekly\n", ws.exportDir, ws.outputDir)
	fmt.Fprintf(&b, "TIMEZONE = UTC\nFORMAT = Png\n\n[Dashboards]\n")
	for i := 0; i+1 < len(dashboards); i += 2 {
		fmt.Fprintf(&b, "%s = %s\n", dashboards[i], dashboards[i+1])
	}

	if err := os.WriteFile(ws.config, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return ws
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newScriptedMock(t *testing.T) *testutil.MockSumo {
	t.Helper()
	mock := testutil.NewMockSumo()
	t.Cleanup(mock.Close)
	mock.Script("d1", testutil.JobScript{
		Statuses:    []string{"InProgress", "Success"},
		Result:      pngBytes(t),
		ContentType: "image/png",
	})
	mock.Script("d2", testutil.JobScript{Statuses: []string{"InProgress"}})
	return mock
}

func TestRun_EndToEnd(t *testing.T) {
	clearEnv(t)
	mock := newScriptedMock(t)
	ws := writeConfig(t, mock.URL(), "d1", "Sales", "d2", "Ops")

	out, err := execute(t, "-c", ws.config, "-s", "0", "--tries", "2", "--metrics-addr", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}

	if !strings.Contains(out, "OK     d1 (Sales): 1 page(s)") {
		t.Errorf("output missing d1 success:\n%s", out)
	}
	if !strings.Contains(out, "FAILED d2 (Ops) [export]: Job: job-d2-2 Status: InProgress: job job-d2-2 status InProgress after 2 attempts") {
		t.Errorf("output missing d2 failure:\n%s", out)
	}

	for _, name := range []string{"d1.png", "d1.0.jpg"} {
		if _, err := os.Stat(filepath.Join(ws.exportDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(ws.exportDir, "d2.png")); !os.IsNotExist(err) {
		t.Errorf("d2 should have no artifact")
	}

	reports, _ := filepath.Glob(filepath.Join(ws.outputDir, "weekly.*.pdf"))
	if len(reports) != 1 {
		t.Fatalf("reports = %v, want one", reports)
	}
	if !strings.Contains(out, "Report: "+reports[0]) {
		t.Errorf("output missing report path:\n%s", out)
	}
}

func TestRun_FailOnError(t *testing.T) {
	clearEnv(t)
	mock := newScriptedMock(t)
	ws := writeConfig(t, mock.URL(), "d1", "Sales", "d2", "Ops")

	_, err := execute(t, "run", "-c", ws.config, "-s", "0", "--tries", "1", "--fail-on-error")
	if !errors.Is(err, errPartialFailure) {
		t.Fatalf("error = %v, want errPartialFailure", err)
	}
	if exitCode(err) != exitPartialFailure {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitPartialFailure)
	}
}

func TestRun_DashboardFlag(t *testing.T) {
	clearEnv(t)
	mock := newScriptedMock(t)
	ws := writeConfig(t, mock.URL(), "d1", "Sales", "d2", "Ops")

	out, err := execute(t, "-c", ws.config, "-s", "0", "-d", "d1", "--fail-on-error")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if got := mock.SubmittedDashboards(); len(got) != 1 || got[0] != "d1" {
		t.Errorf("submitted = %v, want [d1]", got)
	}
	if strings.Contains(out, "d2") {
		t.Errorf("d2 should not be exported:\n%s", out)
	}
}

func TestRun_NoDashboards(t *testing.T) {
	clearEnv(t)
	mock := newScriptedMock(t)
	ws := writeConfig(t, mock.URL())

	_, err := execute(t, "-c", ws.config)
	if !errors.Is(err, config.ErrNoDashboards) {
		t.Errorf("error = %v, want ErrNoDashboards", err)
	}
}

func TestRun_ConfigRequired(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "run")
	if err == nil {
		t.Fatal("expected error without --config")
	}
	if exitCode(err) != exitError {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitError)
	}
}

func TestDashboardsCommand(t *testing.T) {
	clearEnv(t)
	mock := testutil.NewMockSumo()
	defer mock.Close()
	mock.SetDashboards("a1", "Alpha", "b2", "Beta", "c3", "Gamma")
	ws := writeConfig(t, mock.URL())

	out, err := execute(t, "dashboards", "-c", ws.config)
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	want := "a1 = Alpha\nb2 = Beta\nc3 = Gamma\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestLastRunCommand_RequiresRedis(t *testing.T) {
	clearEnv(t)
	ws := writeConfig(t, "https://api.us2.sumologic.com/api")

	if _, err := execute(t, "last-run", "-c", ws.config); err == nil {
		t.Error("expected error without Redis")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitError},
		{fmt.Errorf("%w: 1 of 2", errPartialFailure), exitPartialFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
