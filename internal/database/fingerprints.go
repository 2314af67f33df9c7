package database

import (
	"context"
	"database/sql"
	"fmt"
)

// AttributeSet names one of the multi-valued child relations of a fingerprint.
type AttributeSet string

const (
	SetLanguages       AttributeSet = "languages"
	SetFonts           AttributeSet = "fonts"
	SetPlugins         AttributeSet = "plugins"
	SetWebGLExtensions AttributeSet = "webgl_extensions"
	SetStorage         AttributeSet = "storage"
	SetProtocols       AttributeSet = "protocols"
)

var attributeSetTables = map[AttributeSet]struct {
	table  string
	column string
}{
	SetLanguages:       {"fingerprint_languages", "language"},
	SetFonts:           {"fingerprint_fonts", "font_name"},
	SetPlugins:         {"fingerprint_plugins", "plugin_name"},
	SetWebGLExtensions: {"fingerprint_webgl_extensions", "extension_name"},
	SetStorage:         {"fingerprint_storage", "storage_type"},
	SetProtocols:       {"fingerprint_protocols", "protocol"},
}

var fingerprintTables = []string{
	"browser_fingerprints",
	"fingerprint_languages",
	"fingerprint_fonts",
	"fingerprint_plugins",
	"fingerprint_webgl_extensions",
	"fingerprint_storage",
	"fingerprint_protocols",
}

// ReplaceFingerprint atomically replaces the stored fingerprint for an
// account: all seven tables are cleared for the account and rewritten inside
// one transaction, so a mid-sequence failure rolls back to the previous state.
func (db *DB) ReplaceFingerprint(ctx context.Context, fp *Fingerprint, sets *AttributeSets) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range fingerprintTables {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE account_id = $1", table), fp.AccountID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	query := `INSERT INTO browser_fingerprints (
			account_id, user_agent, language, platform, cookie_enabled,
			hardware_concurrency, device_memory, max_touch_points, screen_width,
			screen_height, screen_color_depth, timezone_name, timezone_offset,
			webgl_vendor, webgl_renderer, webgl_unmasked_vendor, webgl_unmasked_renderer,
			audio_fingerprint, network_downlink, network_effective_type, payload_hash, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	if _, err := tx.ExecContext(ctx, query,
		fp.AccountID, fp.UserAgent, fp.Language, fp.Platform, fp.CookieEnabled,
		fp.HardwareConcurrency, fp.DeviceMemory, fp.MaxTouchPoints, fp.ScreenWidth,
		fp.ScreenHeight, fp.ScreenColorDepth, fp.TimezoneName, fp.TimezoneOffset,
		fp.WebGLVendor, fp.WebGLRenderer, fp.WebGLUnmaskedVendor, fp.WebGLUnmaskedRenderer,
		fp.AudioFingerprint, fp.NetworkDownlink, fp.NetworkEffectiveType, fp.PayloadHash, fp.CapturedAt,
	); err != nil {
		return fmt.Errorf("failed to insert fingerprint: %w", err)
	}

	for _, lang := range sets.Languages {
		if lang == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_languages (account_id, language) VALUES ($1, $2)",
			fp.AccountID, lang); err != nil {
			return fmt.Errorf("failed to insert language: %w", err)
		}
	}

	for _, font := range sets.Fonts {
		if font == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_fonts (account_id, font_name) VALUES ($1, $2)",
			fp.AccountID, font); err != nil {
			return fmt.Errorf("failed to insert font: %w", err)
		}
	}

	for _, plugin := range sets.Plugins {
		if plugin.Name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprint_plugins (account_id, plugin_name, plugin_filename, plugin_description)
			 VALUES ($1, $2, $3, $4)`,
			fp.AccountID, plugin.Name, plugin.Filename, plugin.Description); err != nil {
			return fmt.Errorf("failed to insert plugin: %w", err)
		}
	}

	for _, ext := range sets.WebGLExtensions {
		if ext == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_webgl_extensions (account_id, extension_name) VALUES ($1, $2)",
			fp.AccountID, ext); err != nil {
			return fmt.Errorf("failed to insert webgl extension: %w", err)
		}
	}

	for _, cap := range sets.Storage {
		if cap.Type == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_storage (account_id, storage_type, supported) VALUES ($1, $2, $3)",
			fp.AccountID, cap.Type, cap.Supported); err != nil {
			return fmt.Errorf("failed to insert storage capability: %w", err)
		}
	}

	for _, proto := range sets.Protocols {
		if proto == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_protocols (account_id, protocol) VALUES ($1, $2)",
			fp.AccountID, proto); err != nil {
			return fmt.Errorf("failed to insert protocol: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fingerprint replace: %w", err)
	}

	return nil
}

// GetFingerprint returns the stored parent record, or (nil, nil) when the
// account has no captured fingerprint.
func (db *DB) GetFingerprint(ctx context.Context, accountID string) (*Fingerprint, error) {
	query := `SELECT account_id, user_agent, language, platform, cookie_enabled,
			hardware_concurrency, device_memory, max_touch_points, screen_width,
			screen_height, screen_color_depth, timezone_name, timezone_offset,
			webgl_vendor, webgl_renderer, webgl_unmasked_vendor, webgl_unmasked_renderer,
			audio_fingerprint, network_downlink, network_effective_type, payload_hash, captured_at, created_at
		FROM browser_fingerprints WHERE account_id = $1`

	fp := &Fingerprint{}
	err := db.conn.QueryRowContext(ctx, query, accountID).Scan(
		&fp.AccountID, &fp.UserAgent, &fp.Language, &fp.Platform, &fp.CookieEnabled,
		&fp.HardwareConcurrency, &fp.DeviceMemory, &fp.MaxTouchPoints, &fp.ScreenWidth,
		&fp.ScreenHeight, &fp.ScreenColorDepth, &fp.TimezoneName, &fp.TimezoneOffset,
		&fp.WebGLVendor, &fp.WebGLRenderer, &fp.WebGLUnmaskedVendor, &fp.WebGLUnmaskedRenderer,
		&fp.AudioFingerprint, &fp.NetworkDownlink, &fp.NetworkEffectiveType, &fp.PayloadHash,
		&fp.CapturedAt, &fp.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return fp, err
}

// CountMatchingValues counts distinct values present in both accounts' copies
// of the given attribute set, pushed to the store as a self-join. The distinct
// count keeps the result a set intersection even if duplicate rows exist.
func (db *DB) CountMatchingValues(ctx context.Context, set AttributeSet, accountA, accountB string) (int, error) {
	meta, ok := attributeSetTables[set]
	if !ok {
		return 0, fmt.Errorf("unknown attribute set: %s", set)
	}

	query := fmt.Sprintf(`SELECT COUNT(DISTINCT a.%[2]s) FROM %[1]s a
		INNER JOIN %[1]s b ON a.%[2]s = b.%[2]s
		WHERE a.account_id = $1 AND b.account_id = $2`, meta.table, meta.column)

	var count int
	if err := db.conn.QueryRowContext(ctx, query, accountA, accountB).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matching %s: %w", set, err)
	}
	return count, nil
}

// CountDistinctValues counts distinct values across the union of both
// accounts' copies of the given attribute set.
func (db *DB) CountDistinctValues(ctx context.Context, set AttributeSet, accountA, accountB string) (int, error) {
	meta, ok := attributeSetTables[set]
	if !ok {
		return 0, fmt.Errorf("unknown attribute set: %s", set)
	}

	query := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE account_id IN ($1, $2)`,
		meta.column, meta.table)

	var count int
	if err := db.conn.QueryRowContext(ctx, query, accountA, accountB).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct %s: %w", set, err)
	}
	return count, nil
}

// AllOtherAccounts enumerates every account with a stored fingerprint except
// the target.
func (db *DB) AllOtherAccounts(ctx context.Context, accountID string) ([]string, error) {
	query := `SELECT account_id FROM browser_fingerprints WHERE account_id != $1 ORDER BY account_id`
	return db.queryAccountIDs(ctx, query, accountID)
}

// CandidateAccounts enumerates other accounts in the same coarse hardware
// bucket (platform, screen resolution, core count) as the target, a cheap
// prefilter before running the full weighted score.
func (db *DB) CandidateAccounts(ctx context.Context, target *Fingerprint) ([]string, error) {
	query := `SELECT account_id FROM browser_fingerprints
		WHERE account_id != $1 AND platform = $2 AND screen_width = $3
			AND screen_height = $4 AND hardware_concurrency = $5
		ORDER BY account_id`
	return db.queryAccountIDs(ctx, query, target.AccountID, target.Platform,
		target.ScreenWidth, target.ScreenHeight, target.HardwareConcurrency)
}

func (db *DB) queryAccountIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FingerprintSummary returns a display digest for one account, or (nil, nil)
// when nothing is stored. browserTag reduces the stored user-agent to a
// display label; a nil func leaves the field empty.
func (db *DB) FingerprintSummary(ctx context.Context, accountID string, browserTag func(string) string) (*FingerprintSummary, error) {
	fp, err := db.GetFingerprint(ctx, accountID)
	if err != nil || fp == nil {
		return nil, err
	}

	summary := &FingerprintSummary{
		AccountID:     fp.AccountID,
		Platform:      fp.Platform,
		HardwareCores: fp.HardwareConcurrency,
		DeviceMemory:  fp.DeviceMemory,
		Timezone:      fp.TimezoneName,
		CreatedAt:     fp.CreatedAt,
	}
	if fp.ScreenWidth > 0 && fp.ScreenHeight > 0 {
		summary.ScreenResolution = fmt.Sprintf("%dx%d", fp.ScreenWidth, fp.ScreenHeight)
	}
	if browserTag != nil {
		summary.Browser = browserTag(fp.UserAgent)
	}

	counts := map[string]*int{
		"fingerprint_languages": &summary.LanguagesCount,
		"fingerprint_fonts":     &summary.FontsCount,
		"fingerprint_plugins":   &summary.PluginsCount,
	}
	for table, dest := range counts {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE account_id = $1", table)
		if err := db.conn.QueryRowContext(ctx, query, accountID).Scan(dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	return summary, nil
}
