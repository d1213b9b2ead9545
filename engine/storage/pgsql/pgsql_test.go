package pgsql

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/engine/storage/test"
	"github.com/micromdm/nanoscreen/workflow"
)

func TestPgSQLStorage(t *testing.T) {
	testDSN := os.Getenv("NANOSCREEN_PGSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("NANOSCREEN_PGSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(context.Background(), WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	test.TestStateStorage(t, uuid.NewString()+"-", func() storage.Storage { return s })
}

func TestStoreStateMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PgSQLStorage{db: db}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_state (id, document)")).
		WithArgs("abc", `{"status":"SUCCESS","task_type":"workflow","result":{"address":"0xabc"}}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.StoreState(context.Background(), "abc", &storage.State{
		Status:   workflow.StatusSuccess,
		TaskType: workflow.TaskTypeWorkflow,
		Result:   []byte(`{"address":"0xabc"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetrieveStateMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PgSQLStorage{db: db}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM workflow_state WHERE id = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"status": "queued", "task_type": "workflow"}`)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM workflow_state WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	state, err := s.RetrieveState(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if want, have := workflow.StatusQueued, state.Status; want != have {
		t.Errorf("want %q, have %q", want, have)
	}

	_, err = s.RetrieveState(context.Background(), "missing")
	if !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("have %v, want %v", err, storage.ErrStateNotFound)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreStateErrorMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := &PgSQLStorage{db: db}

	mock.ExpectExec("INSERT INTO workflow_state").
		WillReturnError(errors.New("connection reset"))

	err = s.StoreState(context.Background(), "abc", &storage.State{Status: workflow.StatusRunning})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
