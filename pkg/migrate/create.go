package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"github.com/pressly/goose/v3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// sqlTemplate keeps schema changes short-lived on a busy catalog: a
// migration that cannot take its lock in five seconds fails instead of
// queueing every cart read behind it.
var sqlTemplate = template.Must(template.New("medfarma.sql").Parse(`-- +goose Up
SET LOCAL lock_timeout = '5s';
-- +goose StatementBegin
-- {{.CamelName}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.CamelName}}
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns
// its path. Names are often Spanish ("reposición de stock"); accents are
// folded so the slug stays ASCII.
func CreateSQLMigration(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug, err := migrationSlug(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	if err := goose.CreateWithTemplate(nil, dir, sqlTemplate, slug, "sql"); err != nil {
		return "", err
	}
	created, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil || len(created) == 0 {
		return "", fmt.Errorf("locate migration %s in %q", slug, dir)
	}
	// Timestamped names sort by version.
	return created[len(created)-1], nil
}

func migrationSlug(name string) (string, error) {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", name, err)
	}
	slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(folded), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	return slug, nil
}
