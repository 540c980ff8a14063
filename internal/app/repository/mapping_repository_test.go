package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/stretchr/testify/assert"
)

func TestTranslateInsertError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "code violation",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: model.CodeIndexName},
			want: ErrDuplicateCode,
		},
		{
			name: "owner url violation wrapped",
			err:  fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: model.OwnerURLIndexName}),
			want: ErrDuplicateOwnerURL,
		},
		{
			name: "unknown constraint passes through",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "mappings_pkey"},
		},
		{
			name: "other sqlstate passes through",
			err:  &pgconn.PgError{Code: "23502", ConstraintName: model.CodeIndexName},
		},
		{
			name: "non postgres error passes through",
			err:  other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateInsertError(tt.err)
			if tt.want != nil {
				assert.ErrorIs(t, got, tt.want)
				return
			}
			assert.Same(t, tt.err, got)
		})
	}
}
