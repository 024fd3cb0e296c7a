package roadmap

import "encoding/json"

// Decode parses a JSON snapshot. Malformed input yields a *ParseError naming source.
func Decode(source string, data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if s == nil {
		// "null" is not a roadmap.
		return nil, &ParseError{Source: source, Err: errNullSnapshot}
	}
	return s, nil
}

// Encode renders the snapshot in its wire format.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// EncodeIndent renders the snapshot for humans (exports, local file).
func EncodeIndent(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
