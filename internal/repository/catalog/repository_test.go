package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/comanda/internal/database/dbtest"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/catalog"
)

func TestFindProductAndCombo(t *testing.T) {
	conns := dbtest.Open(t)
	dbtest.Insert(t, conns,
		&entity.Product{ID: "p1", TenantID: "t1", Name: "Taco", BasePrice: decimal.RequireFromString("3.50"), Active: true, Available: true},
		&entity.Combo{ID: "cb1", TenantID: "t1", Name: "Taco trio", Price: decimal.RequireFromString("9.00"), Active: true},
	)
	repo := catalog.NewRepository(conns)
	ctx := context.Background()

	p, err := repo.FindProduct(ctx, "p1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "3.50", p.BasePrice.StringFixed(2))
	assert.True(t, p.Available)

	c, err := repo.FindCombo(ctx, "cb1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Taco trio", c.Name)

	_, err = repo.FindProduct(ctx, "p1", "t2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindCombo(ctx, "nope", "t1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
