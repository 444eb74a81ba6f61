package main

import (
	"github.com/spf13/cobra"

	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// sqlFlags are the SQL-source flags shared by every subcommand that can
// target a query result instead of a file (spec.md §4.1, §6 env
// substitution).
type sqlFlags struct {
	driver string
	dsn    string
	query  string
}

func addSQLFlags(cmd *cobra.Command, f *sqlFlags) {
	cmd.Flags().StringVar(&f.driver, "sql-driver", "", "SQL driver (postgres|mysql|sqlite) for a query source")
	cmd.Flags().StringVar(&f.dsn, "sql-dsn", "", "SQL data source name (may reference {NAME} environment tokens)")
	cmd.Flags().StringVar(&f.query, "sql-query", "", "deterministically ordered SELECT query")
}

// resolveSource opens path as a file source, or as a SQL source when sql
// names a driver, mirroring spec.md §4.1's "table source adapter" split
// and §6's environment-variable substitution for SQL DSNs/queries.
func resolveSource(path string, sql sqlFlags) (tablesource.Source, error) {
	if sql.driver != "" {
		dsn, err := tablesource.SubstituteEnv(sql.dsn)
		if err != nil {
			return nil, err
		}
		query, err := tablesource.SubstituteEnv(sql.query)
		if err != nil {
			return nil, err
		}
		return tablesource.OpenSQL(sql.driver, dsn, query)
	}
	return tablesource.Open(path)
}
