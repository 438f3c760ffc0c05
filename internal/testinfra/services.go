// Package testinfra starts the containers used by integration tests. Tests call
// Require first so they are skipped unless FERN_INTEGRATION=1.
package testinfra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresUser     = "fern"
	PostgresPassword = "fern"
	PostgresDB       = "fern"
)

// Endpoint is the host and mapped port of a started container.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Require skips t unless integration tests are enabled.
func Require(t *testing.T) {
	t.Helper()
	if os.Getenv("FERN_INTEGRATION") != "1" {
		t.Skip("set FERN_INTEGRATION=1 to run integration tests")
	}
}

// MigrationsPath is the absolute path of the canonical store migrations.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// StartPostgres starts PostGIS-enabled Postgres and returns its endpoint.
func StartPostgres(t *testing.T) Endpoint {
	return start(t, testcontainers.ContainerRequest{
		Image:        "postgis/postgis:16-3.4-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     PostgresUser,
			"POSTGRES_PASSWORD": PostgresPassword,
			"POSTGRES_DB":       PostgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}, "5432")
}

// StartMemgraph starts Memgraph without authentication and returns its bolt endpoint.
func StartMemgraph(t *testing.T) Endpoint {
	return start(t, testcontainers.ContainerRequest{
		Image:        "memgraph/memgraph:latest",
		ExposedPorts: []string{"7687/tcp"},
		WaitingFor: wait.ForLog("Server is fully armed and operational").
			WithStartupTimeout(60 * time.Second),
	}, "7687")
}

// StartRedis starts Redis and returns its endpoint.
func StartRedis(t *testing.T) Endpoint {
	return start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}, "6379")
}

func start(t *testing.T, req testcontainers.ContainerRequest, port string) Endpoint {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}
	portNum, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("invalid %s port %q: %v", req.Image, mapped.Port(), err)
	}
	return Endpoint{Host: host, Port: portNum}
}
