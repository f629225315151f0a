package cmd

import (
	"encoding/json"
	"io"
)

// silentExitError is an error that carries no message text. It signals to
// main.go that the command failed (so os.Exit(1) is appropriate) but that
// the error has already been reported, e.g. as JSON on stdout. main.go
// checks err.Error() == "" before printing.
type silentExitError struct{}

func (silentExitError) Error() string { return "" }

// writeJSONError reports err as {"error": "..."} on w.
func writeJSONError(w io.Writer, err error) {
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeJSON pretty-prints v on w.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
