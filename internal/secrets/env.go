package secrets

import (
	"context"
	"encoding/json"
	"os"
)

// envSource assembles the connection-parameter document from RENDERAUTH_DB_*
// environment variables. Intended for local development and CI; missing
// required variables surface through the same schema validation as the AWS
// path.
type envSource struct{}

func (envSource) Name() string {
	return "env"
}

func (envSource) Fetch(ctx context.Context) ([]byte, error) {
	doc := map[string]string{}
	for field, envVar := range map[string]string{
		"host":     "RENDERAUTH_DB_HOST",
		"port":     "RENDERAUTH_DB_PORT",
		"database": "RENDERAUTH_DB_NAME",
		"user":     "RENDERAUTH_DB_USER",
		"password": "RENDERAUTH_DB_PASSWORD",
		"sslmode":  "RENDERAUTH_DB_SSLMODE",
		"driver":   "RENDERAUTH_DB_DRIVER",
	} {
		if v := os.Getenv(envVar); v != "" {
			doc[field] = v
		}
	}

	return json.Marshal(doc)
}
