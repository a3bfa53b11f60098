package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttpunch/AgentProject/connectors/base"
)

func TestFetchQueryScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM machines").WillReturnRows(
		sqlmock.NewRows([]string{"machine_id", "model"}).
			AddRow("CNC-001", "HAAS VF-2").
			AddRow("CNC-002", "DMG MORI NLX"))

	c := NewWithDB(db)
	table, err := c.FetchQuery(context.Background(), "SELECT * FROM machines")
	require.NoError(t, err)

	assert.Equal(t, []string{"machine_id", "model"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "CNC-001", table.Rows[0]["machine_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchQueryRejectsEmptyQuery(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewWithDB(db)
	_, err = c.FetchQuery(context.Background(), "   ")
	assert.Error(t, err)
}

func TestIntrospectSchemaFormatsTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT table_name, column_name, data_type").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("machines", "machine_id", "text").
			AddRow("machines", "model", "text").
			AddRow("sensor_data", "timestamp", "timestamp without time zone"))

	c := NewWithDB(db)
	schema, err := c.IntrospectSchema(context.Background())
	require.NoError(t, err)

	assert.Contains(t, schema, "Table: machines")
	assert.Contains(t, schema, "  - machine_id (text)")
	assert.Contains(t, schema, "Table: sensor_data")
}

func TestConnectorErrorsTagOperation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewWithDB(db)

	mock.ExpectQuery("SELECT table_name, column_name, data_type").
		WillReturnError(errors.New("connection reset"))
	_, err = c.IntrospectSchema(context.Background())
	var connErr *base.ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "postgres", connErr.Connector)
	assert.Equal(t, "IntrospectSchema", connErr.Operation)
	assert.Contains(t, err.Error(), "connection reset")

	mock.ExpectQuery("SELECT DISTINCT source FROM knowledge_chunk").
		WillReturnError(errors.New("relation does not exist"))
	_, err = c.ListChunkSources(context.Background())
	connErr = nil
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "ListChunkSources", connErr.Operation)
}
