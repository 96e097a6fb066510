package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// LegacyBinding is one entry of the old verifications.json map.
type LegacyBinding struct {
	OwnerID string
	Handle  string
}

// ReadLegacy parses the flat {"<owner id>": "<handle>"} file written by the first
// generation of the verify bot. Entries come back sorted by owner id.
func ReadLegacy(path string) ([]LegacyBinding, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]LegacyBinding, 0, len(m))
	for owner, handle := range m {
		if owner == "" || handle == "" {
			continue
		}
		out = append(out, LegacyBinding{OwnerID: owner, Handle: handle})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}
