package mysql

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/engine/storage/test"
	"github.com/micromdm/nanoscreen/workflow"

	_ "github.com/go-sql-driver/mysql"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("NANOSCREEN_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("NANOSCREEN_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	test.TestStateStorage(t, uuid.NewString()+"-", func() storage.Storage { return s })
}

func TestNewCreatesSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS workflow_state").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err = New(WithDB(db)); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreStateMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := New(WithDB(db), WithoutSchema())
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("INSERT INTO workflow_state").
		WithArgs("abc", `{"status":"queued","task_type":"workflow"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.StoreState(context.Background(), "abc", &storage.State{
		Status:   workflow.StatusQueued,
		TaskType: workflow.TaskTypeWorkflow,
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

	s, err := New(WithDB(db), WithoutSchema())
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery("SELECT document FROM workflow_state").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"status": "RUNNING", "task_type": "workflow"}`)))
	mock.ExpectQuery("SELECT document FROM workflow_state").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	state, err := s.RetrieveState(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if want, have := workflow.StatusRunning, state.Status; want != have {
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
