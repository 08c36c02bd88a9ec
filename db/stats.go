package db

import (
	"context"
	"database/sql"

	"github.com/teranos/cdr/errors"
)

// Tables lists the repository tables created by the migrations, parents first.
var Tables = []string{
	"security_provenance",
	"extension_type",
	"assigning_authority",
	"act",
	"act_version",
	"patient_encounter",
	"quantity_observation",
	"text_observation",
	"coded_observation",
	"substance_administration",
	"procedure_act",
	"act_participation",
	"act_relationship",
	"act_identifier",
	"act_extension",
	"act_tag",
	"query_registration",
	"query_registration_key",
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string
	Rows  int64
}

// TableCounts returns the row count of every repository table.
func TableCounts(ctx context.Context, db *sql.DB) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(Tables))
	for _, table := range Tables {
		var n int64
		// table names come from the fixed list above
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count rows in %s", table)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}
