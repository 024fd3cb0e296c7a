package roadmap

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed defaults.json
var defaultsJSON []byte

var defaultSnapshot Snapshot

func init() {
	if err := json.Unmarshal(defaultsJSON, &defaultSnapshot); err != nil {
		panic(fmt.Sprintf("bundled roadmap is not valid JSON: %v", err))
	}
}

// Default returns a fresh copy of the bundled roadmap.
func Default() Snapshot {
	return defaultSnapshot.Clone()
}
