package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	versionLayout = "20060102150405"
	upMarker      = "-- +goose Up"
	downMarker    = "-- +goose Down"
)

var (
	migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its path. The version is
// bumped past the newest existing file so ordering survives clock skew.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		return "", err
	}
	version := time.Now().UTC().Truncate(time.Second)
	if len(files) > 0 {
		latest, err := time.Parse(versionLayout, files[len(files)-1].version)
		if err == nil && !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), slug))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(migrationTemplate, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks every .sql file in dir for a goose-compatible name, a
// unique version and Up/Down sections in that order.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", f.version, prev, f.name)
		}
		seen[f.version] = f.name

		body, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read %q: %w", f.name, err)
		}
		text := string(body)
		up := strings.Index(text, upMarker)
		if up < 0 {
			return fmt.Errorf("migration %q missing %q", f.name, upMarker)
		}
		down := strings.Index(text, downMarker)
		if down < 0 {
			return fmt.Errorf("migration %q missing %q", f.name, downMarker)
		}
		if down < up {
			return fmt.Errorf("migration %q has %q before %q", f.name, downMarker, upMarker)
		}
	}
	return nil
}

type migrationFile struct {
	name    string
	version string
}

// migrationFiles lists .sql files sorted by version, rejecting bad names.
func migrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		files = append(files, migrationFile{name: e.Name(), version: m[1]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
