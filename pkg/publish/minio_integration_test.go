//go:build integration
// +build integration

package publish

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin-secret"
)

func setupMinIOContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestIntegration_Publish(t *testing.T) {
	endpoint := setupMinIOContainer(t)
	ctx := context.Background()

	p, err := NewMinIO(Config{
		Endpoint:  endpoint,
		AccessKey: minioUser,
		SecretKey: minioPassword,
		Bucket:    "dashboard-news",
		Prefix:    "weekly",
	})
	if err != nil {
		t.Fatalf("NewMinIO() error = %v", err)
	}

	object, err := p.Publish(ctx, writeReport(t))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	info, err := p.client.StatObject(ctx, "dashboard-news", object, minio.StatObjectOptions{})
	if err != nil {
		t.Fatalf("StatObject() error = %v", err)
	}
	if info.ContentType != ContentType {
		t.Errorf("ContentType = %q, want %q", info.ContentType, ContentType)
	}

	// Second publish reuses the bucket.
	if _, err := p.Publish(ctx, writeReport(t)); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
}
