package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestInitialMigrationCreatesEveryTable(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	up, err := os.ReadFile(filepath.Join(dir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	down, err := os.ReadFile(filepath.Join(dir, "0001_init.down.sql"))
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}

	created := map[string]bool{}
	for _, m := range regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS (\w+)`).FindAllStringSubmatch(string(up), -1) {
		created[strings.ToLower(m[1])] = true
	}
	dropped := map[string]bool{}
	for _, m := range regexp.MustCompile(`(?i)DROP TABLE IF EXISTS (\w+)`).FindAllStringSubmatch(string(down), -1) {
		dropped[strings.ToLower(m[1])] = true
	}

	// Tables the PostgresStore queries.
	for _, table := range []string{
		"users", "refresh_sessions", "revoked_access_tokens",
		"projects", "project_members", "admin_capabilities",
		"departments", "department_members",
		"conversations", "conversation_participants", "messages",
		"goals", "time_blocks", "tasks", "meetings", "todos",
		"content_items", "leave_requests",
	} {
		if !created[table] {
			t.Errorf("0001_init.up.sql does not create %s", table)
		}
	}
	for table := range created {
		if !dropped[table] {
			t.Errorf("0001_init.down.sql does not drop %s", table)
		}
	}
}
