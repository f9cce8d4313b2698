package locations

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var addressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// Table maps canonical device addresses to human-readable location labels.
// Loaded once at startup and immutable afterwards.
type Table struct {
	entries map[string]string
}

// Empty returns a table with no entries, used when the locations file is
// unavailable. Metadata is non-critical to the physical gauges.
func Empty() *Table {
	return &Table{entries: make(map[string]string)}
}

// Load reads the address,location CSV table. Addresses are normalized to
// uppercase colon-separated hex. Rows with the wrong column count or an
// address that does not look like a hardware address are skipped with a
// warning; a non-address first row is treated as a header. Duplicate
// addresses resolve last-wins, in file order.
func Load(path string, logger *zap.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open locations file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse locations file: %w", err)
	}

	entries := make(map[string]string)
	for i, row := range rows {
		line := i + 1

		if len(row) != 2 {
			logger.Warn("skipping locations row with wrong column count",
				zap.Int("line", line),
				zap.Int("columns", len(row)),
			)
			continue
		}

		address := strings.ToUpper(strings.TrimSpace(row[0]))
		location := strings.TrimSpace(row[1])

		if !addressRegex.MatchString(address) {
			if i == 0 {
				// Header row
				continue
			}
			logger.Warn("skipping locations row with invalid address",
				zap.Int("line", line),
				zap.String("address", row[0]),
			)
			continue
		}

		if prior, seen := entries[address]; seen {
			logger.Warn("duplicate address in locations file, keeping the later row",
				zap.Int("line", line),
				zap.String("address", address),
				zap.String("replaced_location", prior),
			)
		}
		entries[address] = location
	}

	logger.Info("location table loaded",
		zap.String("file", path),
		zap.Int("entries", len(entries)),
	)

	return &Table{entries: entries}, nil
}

// Lookup returns the location label for an address. Absence is not an error;
// the device simply has no location metadata.
func (t *Table) Lookup(address string) (string, bool) {
	location, ok := t.entries[strings.ToUpper(address)]
	return location, ok
}

// All returns a copy of the full address to location mapping.
func (t *Table) All() map[string]string {
	all := make(map[string]string, len(t.entries))
	for address, location := range t.entries {
		all[address] = location
	}
	return all
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.entries)
}
