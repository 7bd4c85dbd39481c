//go:build integration

// Package postgrestest starts a throwaway postgres:16-alpine container with
// the schema applied.
package postgrestest

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fd1az/flashloan-arb/internal/postgres"
)

// Start runs the container, connects and migrates. The returned cleanup
// closes the pool and terminates the container.
func Start(ctx context.Context) (*postgres.Client, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpassword@%s:%s/testdb?sslmode=disable", host, port.Port())
	client, err := postgres.New(ctx, postgres.ClientConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if err := client.RunMigrations(ctx); err != nil {
		client.Close()
		terminate()
		return nil, nil, err
	}

	return client, func() {
		client.Close()
		terminate()
	}, nil
}
