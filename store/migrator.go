package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/internal/version"
)

// Schema layout:
//
//	migration/{driver}/LATEST.sql                full schema for new databases
//	migration/{driver}/{major.minor}/NN__x.sql   incremental upgrades
//	seed/{driver}/*.sql                          demo data (SQLite, demo mode)
//
// A file NN__x.sql in directory 0.2 brings the schema to version 0.2.(NN+1).
// The applied version is kept in system_setting.schema_version.

//go:embed migration
var migrationFS embed.FS

//go:embed seed
var seedFS embed.FS

const (
	// MigrateFileNameSplit separates the patch number from the description, e.g. "00__add_index.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName initializes fresh installations with the current schema.
	LatestSchemaFileName = "LATEST.sql"

	defaultSchemaVersion = "0.0.0"

	modeProd = "prod"
	modeDemo = "demo"
)

// Migrate brings the database schema to the version of this binary.
// A fresh database gets LATEST.sql; an older one gets every newer migration file.
// In demo mode a fresh SQLite database is also seeded.
func (s *Store) Migrate(ctx context.Context) error {
	fresh, err := s.preMigrate(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	dbVersion, err := s.GetSystemSetting(ctx, SchemaVersionSettingName)
	if err != nil {
		return errors.Wrap(err, "failed to get schema version")
	}
	if dbVersion == "" {
		dbVersion = defaultSchemaVersion
	}
	targetVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}

	if version.IsVersionGreaterThan(dbVersion, targetVersion) {
		if s.profile.Mode == modeProd {
			slog.Error("cannot downgrade schema version",
				slog.String("databaseVersion", dbVersion),
				slog.String("currentVersion", targetVersion),
			)
			return errors.Errorf("cannot downgrade schema version from %s to %s", dbVersion, targetVersion)
		}
		slog.Warn("database schema is newer than this binary",
			slog.String("databaseVersion", dbVersion),
			slog.String("currentVersion", targetVersion),
		)
	}
	if version.IsVersionGreaterThan(targetVersion, dbVersion) {
		if err := s.applyMigrations(ctx, dbVersion, targetVersion); err != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}
	}

	if fresh && s.profile.Mode == modeDemo {
		if err := s.seed(ctx); err != nil {
			return errors.Wrap(err, "failed to seed")
		}
	}
	return nil
}

// preMigrate applies LATEST.sql to an uninitialized database and reports whether it did.
func (s *Store) preMigrate(ctx context.Context) (bool, error) {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return false, nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read latest schema file %s", filePath)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := execute(ctx, tx, string(bytes)); err != nil {
		return false, errors.Wrapf(err, "failed to execute %s", filePath)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit transaction")
	}

	schemaVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return false, errors.Wrap(err, "failed to get current schema version")
	}
	if err := s.UpsertSystemSetting(ctx, SchemaVersionSettingName, schemaVersion); err != nil {
		return false, errors.Wrap(err, "failed to record schema version")
	}
	slog.Info("database initialized successfully", slog.String("schemaVersion", schemaVersion))
	return true, nil
}

// applyMigrations runs every migration file in (current, target] in one transaction.
func (s *Store) applyMigrations(ctx context.Context, currentVersion, targetVersion string) error {
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s*/*.sql", s.getMigrationBasePath()))
	if err != nil {
		return errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("start migration",
		slog.String("currentSchemaVersion", currentVersion),
		slog.String("targetSchemaVersion", targetVersion))

	applied := 0
	for _, filePath := range filePaths {
		fileVersion, err := schemaVersionOfMigrateScript(filePath)
		if err != nil {
			return err
		}
		if !shouldApplyMigration(fileVersion, currentVersion, targetVersion) {
			continue
		}

		slog.Info("applying migration", slog.String("file", filePath), slog.String("version", fileVersion))
		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file %s", filePath)
		}
		if err := execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", applied))

	if err := s.UpsertSystemSetting(ctx, SchemaVersionSettingName, targetVersion); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

// seed loads the demo data. Only SQLite ships seed files.
func (s *Store) seed(ctx context.Context) error {
	if s.profile.Driver != "sqlite" {
		slog.Warn("seed is only supported for SQLite, skipping")
		return nil
	}

	filenames, err := fs.Glob(seedFS, fmt.Sprintf("seed/%s/*.sql", s.profile.Driver))
	if err != nil {
		return errors.Wrap(err, "failed to read seed files")
	}
	sort.Strings(filenames)

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	for _, filename := range filenames {
		bytes, err := seedFS.ReadFile(filename)
		if err != nil {
			return errors.Wrapf(err, "failed to read seed file %s", filename)
		}
		if err := execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "seed error: %s", filename)
		}
	}
	return tx.Commit()
}

// GetCurrentSchemaVersion returns the schema version this binary migrates to:
// the version of the newest migration file for the current minor release.
func (s *Store) GetCurrentSchemaVersion() (string, error) {
	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	minorVersion := version.GetMinorVersion(currentVersion)
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s%s/*.sql", s.getMigrationBasePath(), minorVersion))
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)
	if len(filePaths) == 0 {
		return minorVersion + ".0", nil
	}
	return schemaVersionOfMigrateScript(filePaths[len(filePaths)-1])
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

func shouldApplyMigration(fileVersion, currentVersion, targetVersion string) bool {
	if currentVersion == "" {
		currentVersion = defaultSchemaVersion
	}
	return version.IsVersionGreaterThan(fileVersion, currentVersion) &&
		version.IsVersionGreaterOrEqualThan(targetVersion, fileVersion)
}

// schemaVersionOfMigrateScript maps migration/{driver}/0.2/00__x.sql to "0.2.1".
func schemaVersionOfMigrateScript(filePath string) (string, error) {
	elements := strings.Split(filepath.ToSlash(filePath), "/")
	if len(elements) < 2 {
		return "", errors.Errorf("invalid migration file path: %s", filePath)
	}
	minorVersion := elements[len(elements)-2]
	filename := elements[len(elements)-1]
	if !strings.Contains(filename, MigrateFileNameSplit) {
		return "", errors.Errorf("invalid migration filename (missing %s): %s", MigrateFileNameSplit, filename)
	}
	rawPatch := strings.SplitN(filename, MigrateFileNameSplit, 2)[0]
	patch, err := strconv.Atoi(rawPatch)
	if err != nil {
		return "", errors.Wrapf(err, "migration filename must start with a number: %s", filename)
	}
	return fmt.Sprintf("%s.%d", minorVersion, patch+1), nil
}

// execute runs a multi-statement script one statement at a time, since
// lib/pq cannot execute several statements with arguments in one call.
func execute(ctx context.Context, tx *sql.Tx, script string) error {
	for i, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
		}
	}
	return nil
}

// splitStatements splits a SQL script on semicolons outside of quotes,
// dollar-quoted bodies and comments. Comments are dropped.
func splitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		dollarTag  string
		inQuote    bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case dollarTag != "":
			if strings.HasPrefix(script[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
			} else {
				i += end - 1
			}
			continue
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
			continue
		case c == '$':
			if end := strings.IndexByte(script[i+1:], '$'); end >= 0 {
				tag := script[i : i+end+2]
				if isDollarTag(tag) {
					dollarTag = tag
					current.WriteString(tag)
					i += len(tag) - 1
					continue
				}
			}
		case c == ';':
			current.WriteByte(c)
			flush()
			continue
		}
		current.WriteByte(c)
	}
	flush()
	return statements
}

// isDollarTag reports whether s is $$ or $identifier$.
func isDollarTag(s string) bool {
	for _, r := range s[1 : len(s)-1] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
