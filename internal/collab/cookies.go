package collab

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver registration.
)

// FirefoxCookies reads cookies from a Firefox profile's cookies.sqlite.
// Firefox keeps the database locked, so each lookup copies it to a
// temporary file first. Lookups are best-effort: a missing profile
// yields an empty cookie string, not an error.
type FirefoxCookies struct {
	profileDir string
}

// NewFirefoxCookies creates a cookie source. An empty profileDir means
// auto-detect via ~/.mozilla/firefox/profiles.ini.
func NewFirefoxCookies(profileDir string) *FirefoxCookies {
	return &FirefoxCookies{profileDir: profileDir}
}

// Cookies returns a Cookie header value for the host and its
// subdomains.
func (f *FirefoxCookies) Cookies(ctx context.Context, host string) (string, error) {
	dir := f.profileDir
	if dir == "" {
		dir = findFirefoxProfile()
	}
	if dir == "" {
		return "", nil
	}

	src := filepath.Join(dir, "cookies.sqlite")
	if _, err := os.Stat(src); err != nil {
		return "", nil
	}

	tmp, err := copyToTemp(src)
	if err != nil {
		return "", fmt.Errorf("copy cookie db: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return "", fmt.Errorf("open cookie db: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		`SELECT name, value FROM moz_cookies WHERE host = ? OR host LIKE ?`,
		host, "%"+host,
	)
	if err != nil {
		return "", fmt.Errorf("query cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pairs []string
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return "", fmt.Errorf("scan cookie: %w", err)
		}
		pairs = append(pairs, name+"="+value)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate cookies: %w", err)
	}
	return strings.Join(pairs, "; "), nil
}

func copyToTemp(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp("", "speedreader-cookies-*.sqlite")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// findFirefoxProfile locates the default profile via profiles.ini,
// falling back to any profile directory that has a cookie database.
func findFirefoxProfile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	firefoxDir := filepath.Join(home, ".mozilla", "firefox")

	if data, err := os.ReadFile(filepath.Join(firefoxDir, "profiles.ini")); err == nil {
		if path := defaultProfilePath(string(data)); path != "" {
			dir := filepath.Join(firefoxDir, path)
			if _, err := os.Stat(dir); err == nil {
				return dir
			}
		}
	}

	entries, err := os.ReadDir(firefoxDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(firefoxDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "cookies.sqlite")); err == nil {
			return dir
		}
	}
	return ""
}

// defaultProfilePath parses profiles.ini sections and returns the Path
// of the section marked Default=1.
func defaultProfilePath(ini string) string {
	var path string
	var isDefault bool
	flush := func() string {
		if isDefault && path != "" {
			return path
		}
		return ""
	}

	for _, line := range strings.Split(ini, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "["):
			if p := flush(); p != "" {
				return p
			}
			path, isDefault = "", false
		case strings.HasPrefix(line, "Path="):
			path = strings.TrimPrefix(line, "Path=")
		case line == "Default=1":
			isDefault = true
		}
	}
	return flush()
}
