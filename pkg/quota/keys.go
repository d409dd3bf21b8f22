package quota

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Fingerprint returns a stable, non-reversible identifier for key that is
// safe to log.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:8] + "..."
}

// Display shortens key for operator-facing output.
func Display(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..."
}

// LoadKeysFile reads one key per line. Blank lines and lines starting
// with # are skipped.
func LoadKeysFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keys file %q: %w", path, err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keys file %q: %w", path, err)
	}
	return keys, nil
}

// MergeKeys returns inline keys followed by file keys, without duplicates.
func MergeKeys(inline, fromFile []string) []string {
	seen := make(map[string]bool, len(inline)+len(fromFile))
	out := make([]string, 0, len(inline)+len(fromFile))
	for _, list := range [][]string{inline, fromFile} {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
