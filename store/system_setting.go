package store

import "context"

// SchemaVersionSettingName holds the schema version the database was migrated to.
const SchemaVersionSettingName = "schema_version"

// GetSystemSetting returns the setting value, or "" when it is not set.
func (s *Store) GetSystemSetting(ctx context.Context, name string) (string, error) {
	return s.driver.GetSystemSetting(ctx, name)
}

func (s *Store) UpsertSystemSetting(ctx context.Context, name, value string) error {
	return s.driver.UpsertSystemSetting(ctx, name, value)
}
