package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxEnvSearchDepth bounds how far findEnvFile climbs from the working directory
const maxEnvSearchDepth = 5

// findEnvFile returns the nearest .env above the working directory. The search
// stops at a checkout root (a directory holding .git) so a stray file further up
// never leaks into a deployment.
func findEnvFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for depth := 0; depth < maxEnvSearchDepth; depth++ {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no .env between %s and its checkout root", cwd)
}

// lookup returns the trimmed value of key and whether it was set to something
func lookup(key string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	return val, val != ""
}

// GetString returns the value of key, or def when unset
func GetString(key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

// GetInt returns key parsed as an int, or def when unset or malformed
func GetInt(key string, def int) int {
	if val, ok := lookup(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

// GetInt64 returns key parsed as an int64; row ids such as the sentinel reviewer are negative
func GetInt64(key string, def int64) int64 {
	if val, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// GetBool returns key parsed with strconv.ParseBool, or def
func GetBool(key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// GetDuration accepts Go durations ("30s") or bare seconds ("30")
func GetDuration(key string, def time.Duration) time.Duration {
	val, ok := lookup(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
