package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	runStoreTests(t, func(t *testing.T) store {
		return NewMemoryRepository()
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	c, err := r.CreateCity(ctx, "Berlin", []string{"berlin"})
	require.NoError(t, err)
	c.Aliases[0] = "paris"

	_, err = r.FindCityByNameOrAlias(ctx, "paris")
	assert.ErrorIs(t, err, ErrCityNotFound)

	_, err = r.CreateProduct(ctx, " ", decimal.NewFromInt(1))
	assert.Error(t, err)
}
