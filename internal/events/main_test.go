package events

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stock-ledger/internal/testutil/pgtest"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	os.Exit(pgtest.Main(m, &testDB))
}
