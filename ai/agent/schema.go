package agent

import (
	"context"
	"fmt"
)

// mongoSchema is the fixed shape of the sensor log collection. The
// document store is schemaless, so this description is maintained by hand.
const mongoSchema = "MongoDB Collection 'sensor_logs' has fields: timestamp, machine_id, vibration, temperature, pressure."

// loadSchemaContext combines the live relational schema with the document
// collection description. An introspection failure is embedded as text so
// a degraded schema never aborts the request.
func (e *Engine) loadSchemaContext(ctx context.Context) string {
	pgSchema, err := e.db.IntrospectSchema(ctx)
	if err != nil {
		pgSchema = fmt.Sprintf("Postgres Error: %v", err)
	}
	return fmt.Sprintf("%s\n%s", pgSchema, mongoSchema)
}
