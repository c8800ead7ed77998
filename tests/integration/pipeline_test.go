//go:build integration

package integration

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/dashboard-news/internal/testutil"
	"github.com/Sternrassler/dashboard-news/pkg/batch"
	"github.com/Sternrassler/dashboard-news/pkg/cache"
	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/Sternrassler/dashboard-news/pkg/ledger"
	"github.com/Sternrassler/dashboard-news/pkg/raster"
	"github.com/Sternrassler/dashboard-news/pkg/report"
	"github.com/disintegration/imaging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(800, 450, color.NRGBA{R: 30, G: 90, B: 200, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// TestPipeline_EndToEnd discovers the endpoint through a redirect, exports two
// dashboards as PNG, records the run in Redis and assembles the report.
func TestPipeline_EndToEnd(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	nop := zerolog.Nop()

	regional := testutil.NewMockSumo()
	defer regional.Close()
	regional.Script("d1", testutil.JobScript{
		Statuses:    []string{"InProgress", "Success"},
		Result:      pngBytes(t),
		ContentType: "image/png",
	})
	regional.Script("d2", testutil.JobScript{Statuses: []string{"InProgress"}})

	global := testutil.NewRedirectServer(strings.TrimSuffix(regional.URL(), "/api"))
	defer global.Close()

	endpoints := cache.NewEndpointStore(cache.NewManager(redisClient))
	cfg := client.DefaultConfig(testutil.AccessID, testutil.AccessKey)
	cfg.DefaultEndpoint = global.URL + "/api"
	cfg.EndpointCache = endpoints
	cfg.Logger = &nop

	sumo, err := client.New(ctx, cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer sumo.Close()

	if sumo.Endpoint() != regional.URL() {
		t.Fatalf("Endpoint() = %q, want %q", sumo.Endpoint(), regional.URL())
	}
	cached, ok, err := endpoints.GetEndpoint(ctx, testutil.AccessID)
	if err != nil || !ok || cached != regional.URL() {
		t.Fatalf("cached endpoint = %q, %v, %v", cached, ok, err)
	}

	store := ledger.NewRedisStore(redisClient, nop)
	exportDir := t.TempDir()

	orchestrator, err := batch.New(sumo, raster.ForFormat(client.FormatPng, nil, 640), batch.Config{
		ExportDir: exportDir,
		Format:    client.FormatPng,
		Timezone:  "UTC",
		Budget:    client.PollBudget{MaxAttempts: 3, Interval: 10 * time.Millisecond},
		Ledger:    store,
		Logger:    &nop,
	})
	if err != nil {
		t.Fatalf("batch.New() error = %v", err)
	}

	result, err := orchestrator.Run(ctx, []batch.DashboardRef{
		{ID: "d1", Label: "Traffic"},
		{ID: "d2", Label: "Errors"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(result.Succeeded()); got != 1 {
		t.Fatalf("succeeded = %d, want 1", got)
	}
	failed := result.Failed()
	if len(failed) != 1 || failed[0].Ref.ID != "d2" {
		t.Fatalf("failed = %+v, want d2", failed)
	}
	if failed[0].Attempts != 3 {
		t.Errorf("d2 attempts = %d, want 3", failed[0].Attempts)
	}

	images := result.Images()["d1"]
	if len(images) != 1 {
		t.Fatalf("d1 images = %v, want one page", images)
	}
	img, err := imaging.Open(images[0])
	if err != nil {
		t.Fatalf("open page image: %v", err)
	}
	if img.Bounds().Dx() != 640 {
		t.Errorf("page width = %d, want 640", img.Bounds().Dx())
	}

	summary, records, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if summary.RunID != result.RunID || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(records) != 2 || records[0].DashboardID != "d1" || records[1].DashboardID != "d2" {
		t.Fatalf("records = %+v, want d1, d2 in input order", records)
	}
	if records[1].Status != string(client.StatusInProgress) {
		t.Errorf("d2 status = %q, want InProgress", records[1].Status)
	}

	assembler := report.NewAssembler("integration")
	assembler.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	path, err := assembler.Assemble(result.ReportItems(), t.TempDir())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if filepath.Base(path) != "integration.20260314.092653.pdf" {
		t.Errorf("report = %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("report is not a PDF")
	}
}

// TestPipeline_CachedEndpointSkipsProbe verifies a second client reuses the
// endpoint stored by the first one.
func TestPipeline_CachedEndpointSkipsProbe(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	nop := zerolog.Nop()

	regional := testutil.NewMockSumo()
	defer regional.Close()

	endpoints := cache.NewEndpointStore(cache.NewManager(redisClient))
	if err := endpoints.SetEndpoint(ctx, testutil.AccessID, regional.URL(), time.Hour); err != nil {
		t.Fatalf("SetEndpoint() error = %v", err)
	}

	cfg := client.DefaultConfig(testutil.AccessID, testutil.AccessKey)
	cfg.DefaultEndpoint = "http://127.0.0.1:1/api"
	cfg.EndpointCache = endpoints
	cfg.Logger = &nop

	sumo, err := client.New(ctx, cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer sumo.Close()

	if sumo.Endpoint() != regional.URL() {
		t.Errorf("Endpoint() = %q, want %q", sumo.Endpoint(), regional.URL())
	}
	if regional.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want no probe", regional.GetRequestCount())
	}
}
