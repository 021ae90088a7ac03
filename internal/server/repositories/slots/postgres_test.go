package slots

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func strPtr(s string) *string { return &s }

const upsertQuery = `(?s)^\s*INSERT\s+INTO\s+key_images\s*\(key_id,\s*id_n,\s*status,\s*public_id,\s*url\)\s*SELECT\s+\$1::uuid.*WHERE\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+keys\s+WHERE\s+id\s*=\s*\$1\)\s*ON\s+CONFLICT\s*\(key_id,\s*id_n\)\s*DO\s+UPDATE\s+SET`

func TestUpsert(t *testing.T) {
	tests := []struct {
		name    string
		result  func(m sqlmock.Sqlmock)
		wantErr string
		is      error
	}{
		{name: "written", result: func(m sqlmock.Sqlmock) {
			m.ExpectExec(upsertQuery).
				WithArgs("k-1", 2, 5, strPtr("h"), strPtr("/public/h")).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}},
		{name: "missing key", result: func(m sqlmock.Sqlmock) {
			m.ExpectExec(upsertQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		}, is: common.ErrorNotFound},
		{name: "unexpected rows", result: func(m sqlmock.Sqlmock) {
			m.ExpectExec(upsertQuery).WillReturnResult(sqlmock.NewResult(0, 2))
		}, wantErr: "unexpected rows affected: 2"},
		{name: "db error", result: func(m sqlmock.Sqlmock) {
			m.ExpectExec(upsertQuery).WillReturnError(errors.New("db down"))
		}, wantErr: "upsert slot: db error: db down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()
			tt.result(mock)

			err := repo.Upsert(context.Background(), "k-1", models.ImageSlot{IDN: 2, Status: models.StatusSaved, PublicID: strPtr("h"), URL: strPtr("/public/h")})
			switch {
			case tt.is != nil:
				assert.ErrorIs(t, err, tt.is)
			case tt.wantErr != "":
				assert.EqualError(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id_n,\s*status,\s*public_id,\s*url\s+FROM\s+key_images\s+WHERE\s+key_id\s*=\s*\$1\s+AND\s+id_n\s*=\s*\$2\s+FOR\s+UPDATE$`
	mock.ExpectQuery(q).WithArgs("k-1", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id_n", "status", "public_id", "url"}).AddRow(0, 5, "h", "/public/h"))
	mock.ExpectQuery(q).WithArgs("k-1", 1).WillReturnError(sql.ErrNoRows)

	got, err := repo.GetForUpdate(context.Background(), "k-1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSaved, got.Status)
	assert.Equal(t, "h", got.Handle())

	_, err = repo.GetForUpdate(context.Background(), "k-1", 1)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeletePreFinal(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+key_images\s+WHERE\s+key_id\s*=\s*\$1\s+AND\s+id_n\s*=\s*\$2\s+AND\s+status\s+BETWEEN\s+\$3\s+AND\s+\$4$`
	mock.ExpectExec(q).WithArgs("k-1", 1, 0, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("k-1", 2, 0, 4).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeletePreFinal(context.Background(), "k-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeletePreFinal(context.Background(), "k-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteSaved(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+key_images\s+WHERE\s+key_id\s*=\s*\$1\s+AND\s+id_n\s*=\s*\$2\s+AND\s+status\s*=\s*\$3\s+RETURNING\s+id_n,\s*status,\s*public_id,\s*url$`
	mock.ExpectQuery(q).WithArgs("k-1", 0, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id_n", "status", "public_id", "url"}).AddRow(0, 5, "h", nil))
	mock.ExpectQuery(q).WithArgs("k-1", 1, 5).WillReturnError(sql.ErrNoRows)

	got, err := repo.DeleteSaved(context.Background(), "k-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "h", got.Handle())
	assert.Nil(t, got.URL)

	_, err = repo.DeleteSaved(context.Background(), "k-1", 1)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSnapshot(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+key_images\s+ki.*WHERE\s+l\.supplier_id\s*=\s*\$1\s+ORDER\s+BY\s+k\.id,\s*ki\.id_n\s+FOR\s+UPDATE\s+OF\s+ki$`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "line", "supplier", "code", "id_n", "status", "public_id", "url"}).
			AddRow("k-1", "123", "AB ", "0007", 0, 5, "h", "/public/h").
			AddRow("k-1", "123", "AB ", "0007", 1, 2, nil, nil))

	got, err := repo.Snapshot(context.Background(), models.SlotScope{SupplierID: "s-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "123AB ", got[0].LineCode)
	assert.Equal(t, "123AB 0007", got[0].KeyCode)
	assert.Equal(t, models.StatusSaved, got[0].Slot.Status)
	assert.Nil(t, got[1].Slot.PublicID)
}

func TestSnapshot_AllKeys(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)WHERE\s+TRUE\s+ORDER\s+BY`).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"id", "line", "supplier", "code", "id_n", "status", "public_id", "url"}))

	got, err := repo.Snapshot(context.Background(), models.SlotScope{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReset(t *testing.T) {
	t.Run("fresh slots for one key", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`(?s)INSERT\s+INTO\s+key_images.*SELECT\s+k\.id,\s*f\.id_n,\s*f\.status.*VALUES\s+\(\$2::smallint,\s*\$3::smallint\),\s*\(\$4::smallint,\s*\$5::smallint\),\s*\(\$6::smallint,\s*\$7::smallint\)\)\s+AS\s+f\(id_n,\s*status\).*WHERE\s+k\.id\s*=\s*\$1\s+ON\s+CONFLICT`).
			WithArgs("k-1", 0, 3, 1, 3, 2, 3).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.Reset(context.Background(), models.SlotScope{KeyID: "k-1"}, models.StatusPrepared)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("saved empties every populated key", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`(?s)DELETE\s+FROM\s+key_images\s+ki\s+USING\s+keys\s+k.*WHERE\s+ki\.key_id\s*=\s*k\.id\s+AND\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+key_images\s+x\s+WHERE\s+x\.key_id\s*=\s*k\.id\)$`).
			WithArgs().
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.Reset(context.Background(), models.SlotScope{}, models.StatusSaved)
		require.NoError(t, err)
		assert.EqualValues(t, 7, n)
	})

	t.Run("line scope db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`WHERE\s+k\.line_id\s*=\s*\$1`).
			WithArgs("l-1", 0, 0, 1, 0, 2, 0).
			WillReturnError(errors.New("db down"))

		_, err := repo.Reset(context.Background(), models.SlotScope{LineID: "l-1"}, models.StatusDefective)
		assert.EqualError(t, err, "reset slots: db error: db down")
	})
}
