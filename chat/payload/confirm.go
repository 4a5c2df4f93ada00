package payload

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultConfirmTTL applies when a confirmation payload omits
// expiresInSeconds.
const DefaultConfirmTTL = 300

// WriteConfirm asks the user to approve a data-modifying statement.
// The token is single use and expires on the server; the client does
// not track the expiry itself.
type WriteConfirm struct {
	ConfirmationToken string
	SQLPreview        string
	Explanation       string
	ConnectionID      int64
	DatabaseName      string
	SchemaName        string
	ExpiresInSeconds  int
	Error             string
}

// ParseConfirm requires a non-empty string confirmationToken. Other
// fields fall back to their defaults when missing or of the wrong type.
func ParseConfirm(raw string) (WriteConfirm, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return WriteConfirm{}, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return WriteConfirm{}, false
	}
	token := root.Get("confirmationToken")
	if token.Type != gjson.String || token.Str == "" {
		return WriteConfirm{}, false
	}

	wc := WriteConfirm{
		ConfirmationToken: token.Str,
		SQLPreview:        stringField(root, "sqlPreview"),
		Explanation:       stringField(root, "explanation"),
		DatabaseName:      stringField(root, "databaseName"),
		SchemaName:        stringField(root, "schemaName"),
		Error:             stringField(root, "error"),
		ExpiresInSeconds:  DefaultConfirmTTL,
	}
	if v := root.Get("connectionId"); v.Type == gjson.Number {
		wc.ConnectionID = v.Int()
	}
	if v := root.Get("expiresInSeconds"); v.Type == gjson.Number {
		wc.ExpiresInSeconds = int(v.Int())
	}
	return wc, true
}

// TTL returns the advertised lifetime of the token.
func (w WriteConfirm) TTL() time.Duration {
	return time.Duration(w.ExpiresInSeconds) * time.Second
}
