package secrets

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// connectionSchema validates the secret payload before any field is read.
// host, port, database, user and password are required; everything else is
// optional with defaults applied in parsePayload.
const connectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["host", "port", "database", "user", "password"],
  "properties": {
    "host":     {"type": "string", "minLength": 1},
    "port":     {"type": ["string", "integer"]},
    "database": {"type": "string", "minLength": 1},
    "user":     {"type": "string", "minLength": 1},
    "password": {"type": "string"},
    "sslmode":  {"type": "string"},
    "driver":   {"type": "string", "enum": ["postgres", "mysql"]}
  }
}`

// MalformedSecretError indicates the resolved secret payload is not a valid
// connection-parameter document.
type MalformedSecretError struct {
	Source  string
	Reasons []string
}

func (e MalformedSecretError) Error() string {
	return fmt.Sprintf("malformed secret from %s:\n  - %s",
		e.Source, strings.Join(e.Reasons, "\n  - "))
}

// connectionPayload is the wire shape of the secret document
type connectionPayload struct {
	Host     string      `json:"host"`
	Port     json.Number `json:"port"`
	Database string      `json:"database"`
	User     string      `json:"user"`
	Password string      `json:"password"`
	SSLMode  string      `json:"sslmode"`
	Driver   string      `json:"driver"`
}

// validatePayload checks the raw secret document against connectionSchema
func validatePayload(source string, payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(connectionSchema)
	documentLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return MalformedSecretError{
			Source:  source,
			Reasons: []string{fmt.Sprintf("not a JSON document: %v", err)},
		}
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return MalformedSecretError{Source: source, Reasons: reasons}
	}

	return nil
}
