package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"sampleflow/internal/infra/persistence/postgres/testutil"
	"sampleflow/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
}

func TestSaveAndLoadRoundTripOverrides(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	o := domain.NewOverrides()
	o.AdminStored["S-9"] = domain.StoredFlag{Source: domain.StoredFromIssues}
	o.IssueReasons["S-9"] = []string{"leaking vial"}
	buckets, err := o.EncodeBuckets()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Save(ctx, buckets); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(conn.Rows) != len(buckets) {
		t.Fatalf("expected %d rows, got %d", len(buckets), len(conn.Rows))
	}
	raw, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := domain.DecodeOverrides(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AdminStored["S-9"].Source != domain.StoredFromIssues {
		t.Fatalf("expected stored flag to round trip, got %v", got.AdminStored)
	}
	if len(got.IssueReasons["S-9"]) != 1 {
		t.Fatalf("expected issue reasons to round trip, got %v", got.IssueReasons)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://ignored"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestSaveCommitFailureIsReported(t *testing.T) {
	store, conn := openStub(t)
	conn.FailCommit = true
	err := store.Save(context.Background(), map[string][]byte{domain.BucketComments: []byte(`{}`)})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestLoadQueryFailure(t *testing.T) {
	store, conn := openStub(t)
	conn.FailQuery = true
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected query error")
	}
}
