// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultMariaDBImage is the server used by the round-trip tests
	DefaultMariaDBImage = "mariadb:11.4"
	mariaDBPort         = "3306/tcp"
	rootPassword        = "nukepave"
)

// SkipIfNoDocker skips the test if Docker is not available
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// MariaDB is a running server with an empty database
type MariaDB struct {
	Container testcontainers.Container
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
}

// NewMariaDB starts a MariaDB container and creates database. It is
// terminated when the test ends.
func NewMariaDB(t *testing.T, database string) *MariaDB {
	t.Helper()
	SkipIfNoDocker(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        DefaultMariaDBImage,
		ExposedPorts: []string{mariaDBPort},
		Env: map[string]string{
			"MARIADB_ROOT_PASSWORD": rootPassword,
			"MARIADB_DATABASE":      database,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(mariaDBPort),
			wait.ForLog("ready for connections").WithOccurrence(2),
		).WithDeadline(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mariadb: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, mariaDBPort)
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	return &MariaDB{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		User:      "root",
		Password:  rootPassword,
		Database:  database,
	}
}

// Addr returns host:port
func (m *MariaDB) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}
