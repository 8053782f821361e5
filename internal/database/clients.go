package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ClientRow is one enabled backend from the client_catalog table.
type ClientRow struct {
	Kind             string  `json:"kind"`
	Name             string  `json:"name"`
	Hostname         string  `json:"hostname"`
	Port             uint16  `json:"port"`
	TLS              bool    `json:"tls"`
	TLSInsecure      bool    `json:"tls_insecure"`
	RequestTimeoutMs int64   `json:"request_timeout_ms"`
	HealthHostname   *string `json:"health_hostname,omitempty"`
	HealthPort       *uint16 `json:"health_port,omitempty"`
}

const listClientsQuery = `
	SELECT
		kind,
		name,
		hostname,
		port,
		tls,
		tls_insecure,
		request_timeout_ms,
		health_hostname,
		health_port
	FROM client_catalog
	WHERE enabled = true
	ORDER BY kind, name
`

func ListClients(ctx context.Context, db *sql.DB) ([]ClientRow, error) {
	rows, err := db.QueryContext(ctx, listClientsQuery)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var out []ClientRow
	for rows.Next() {
		var (
			r          ClientRow
			healthPort sql.NullInt32
		)
		if err := rows.Scan(
			&r.Kind,
			&r.Name,
			&r.Hostname,
			&r.Port,
			&r.TLS,
			&r.TLSInsecure,
			&r.RequestTimeoutMs,
			&r.HealthHostname,
			&healthPort,
		); err != nil {
			return nil, fmt.Errorf("failed scanning client row: %w", err)
		}
		if healthPort.Valid {
			p := uint16(healthPort.Int32)
			r.HealthPort = &p
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading client rows: %w", err)
	}
	return out, nil
}
