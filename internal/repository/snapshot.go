package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// ExportCatalog выгружает каталог и настройки. Связи района с товарами
// записываются по названиям товаров.
func (r *PostgresRepository) ExportCatalog(ctx context.Context) (*model.CatalogSnapshot, error) {
	cities, err := r.ListCities(ctx)
	if err != nil {
		return nil, err
	}
	products, err := r.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	methods, err := r.ListPaymentMethods(ctx, false)
	if err != nil {
		return nil, err
	}
	settings, err := r.ListSettings(ctx)
	if err != nil {
		return nil, err
	}

	productNames := make(map[int64][]string)
	rows, err := r.pool.Query(ctx,
		`SELECT dp.district_id, p.name
		 FROM district_products dp
		 JOIN products p ON p.id = dp.product_id
		 ORDER BY dp.district_id, p.id`)
	if err != nil {
		return nil, fmt.Errorf("select associations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			districtID int64
			name       string
		)
		if err := rows.Scan(&districtID, &name); err != nil {
			return nil, fmt.Errorf("scan association: %w", err)
		}
		productNames[districtID] = append(productNames[districtID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	snap := &model.CatalogSnapshot{
		Cities:         make([]model.SnapshotCity, 0, len(cities)),
		Products:       make([]model.SnapshotProduct, 0, len(products)),
		PaymentMethods: methods,
		Settings:       settings,
	}
	for _, c := range cities {
		districts, err := r.ListDistricts(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		sc := model.SnapshotCity{Name: c.Name, Aliases: c.Aliases, Districts: make([]model.SnapshotDistrict, 0, len(districts))}
		for _, d := range districts {
			sc.Districts = append(sc.Districts, model.SnapshotDistrict{Name: d.Name, Products: productNames[d.ID]})
		}
		snap.Cities = append(snap.Cities, sc)
	}
	for _, p := range products {
		snap.Products = append(snap.Products, model.SnapshotProduct{Name: p.Name, Price: p.Price})
	}

	return snap, nil
}

// ImportCatalog загружает каталог в одной транзакции. Записи сопоставляются
// по естественным ключам: название города и товара, район внутри города,
// код способа оплаты и ключ настройки. Существующие записи обновляются.
func (r *PostgresRepository) ImportCatalog(ctx context.Context, snap model.CatalogSnapshot) error {
	snap, err := normalizeSnapshot(snap)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		productIDs := make(map[string]int64, len(snap.Products))
		for _, p := range snap.Products {
			id, err := upsertProductByName(ctx, tx, p)
			if err != nil {
				return err
			}
			productIDs[validation.MatchKey(p.Name)] = id
		}

		for _, c := range snap.Cities {
			var cityID int64
			err := tx.QueryRow(ctx,
				`INSERT INTO cities (name, aliases, match_keys) VALUES ($1, $2, $3)
				 ON CONFLICT (name) DO UPDATE SET aliases = EXCLUDED.aliases, match_keys = EXCLUDED.match_keys
				 RETURNING id`,
				c.Name, c.Aliases, validation.CityMatchKeys(c.Name, c.Aliases),
			).Scan(&cityID)
			if err != nil {
				return fmt.Errorf("upsert city %s: %w", c.Name, err)
			}

			for _, d := range c.Districts {
				districtID, err := upsertDistrictByName(ctx, tx, cityID, d.Name)
				if err != nil {
					return err
				}
				for _, name := range d.Products {
					productID, ok := productIDs[validation.MatchKey(name)]
					if !ok {
						productID, err = productIDByName(ctx, tx, name)
						if err != nil {
							return err
						}
					}
					if _, err := addAssociation(ctx, tx, districtID, productID); err != nil {
						return err
					}
				}
			}
		}

		for _, pm := range snap.PaymentMethods {
			pm, err := normalizePaymentMethod(pm)
			if err != nil {
				return fmt.Errorf("payment method %s: %w", pm.Code, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO payment_methods (name, code, rate, address, enabled)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (code) DO UPDATE
				 SET name = EXCLUDED.name, rate = EXCLUDED.rate,
				     address = EXCLUDED.address, enabled = EXCLUDED.enabled`,
				pm.Name, pm.Code, pm.Rate, pm.Address, pm.Enabled,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", ErrPaymentMethodExists, pm.Name)
				}
				return fmt.Errorf("upsert payment method %s: %w", pm.Code, err)
			}
		}

		for k, v := range snap.Settings {
			if err := setSetting(ctx, tx, k, v); err != nil {
				return err
			}
		}

		return nil
	})
}

// normalizeSnapshot проверяет документ и обрезает пробелы в названиях.
func normalizeSnapshot(snap model.CatalogSnapshot) (model.CatalogSnapshot, error) {
	res := model.CatalogSnapshot{
		Products:       make([]model.SnapshotProduct, 0, len(snap.Products)),
		Cities:         make([]model.SnapshotCity, 0, len(snap.Cities)),
		PaymentMethods: snap.PaymentMethods,
		Settings:       snap.Settings,
	}

	for _, p := range snap.Products {
		name, err := validation.NormalizeName(p.Name)
		if err != nil {
			return res, fmt.Errorf("product: %w", err)
		}
		if err := validation.ValidatePrice(p.Price); err != nil {
			return res, fmt.Errorf("product %s: %w", name, err)
		}
		res.Products = append(res.Products, model.SnapshotProduct{Name: name, Price: p.Price})
	}

	for _, c := range snap.Cities {
		name, err := validation.NormalizeName(c.Name)
		if err != nil {
			return res, fmt.Errorf("city: %w", err)
		}
		city := model.SnapshotCity{
			Name:      name,
			Aliases:   validation.NormalizeAliases(c.Aliases),
			Districts: make([]model.SnapshotDistrict, 0, len(c.Districts)),
		}
		for _, d := range c.Districts {
			dname, err := validation.NormalizeName(d.Name)
			if err != nil {
				return res, fmt.Errorf("district of %s: %w", name, err)
			}
			city.Districts = append(city.Districts, model.SnapshotDistrict{Name: dname, Products: d.Products})
		}
		res.Cities = append(res.Cities, city)
	}

	return res, nil
}

func upsertProductByName(ctx context.Context, tx pgx.Tx, p model.SnapshotProduct) (int64, error) {
	id, err := productIDByName(ctx, tx, p.Name)
	if err == nil {
		if _, err := tx.Exec(ctx, `UPDATE products SET price = $2 WHERE id = $1`, id, p.Price); err != nil {
			return 0, fmt.Errorf("update product %s: %w", p.Name, err)
		}
		return id, nil
	}
	if !errors.Is(err, ErrProductNotFound) {
		return 0, err
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO products (name, price) VALUES ($1, $2) RETURNING id`,
		p.Name, p.Price,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert product %s: %w", p.Name, err)
	}
	return id, nil
}

func productIDByName(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	rows, err := tx.Query(ctx, `SELECT id, name FROM products ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("find product %s: %w", name, err)
	}
	id, ok, err := firstMatchingName(rows, name)
	if err != nil {
		return 0, fmt.Errorf("find product %s: %w", name, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, name)
	}
	return id, nil
}

func upsertDistrictByName(ctx context.Context, tx pgx.Tx, cityID int64, name string) (int64, error) {
	rows, err := tx.Query(ctx, `SELECT id, name FROM districts WHERE city_id = $1 ORDER BY id`, cityID)
	if err != nil {
		return 0, fmt.Errorf("find district %s: %w", name, err)
	}
	id, ok, err := firstMatchingName(rows, name)
	if err != nil {
		return 0, fmt.Errorf("find district %s: %w", name, err)
	}
	if ok {
		return id, nil
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO districts (name, city_id) VALUES ($1, $2) RETURNING id`,
		name, cityID,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert district %s: %w", name, err)
	}
	return id, nil
}

// firstMatchingName сравнивает названия по validation.MatchKey, а не lower() в базе,
// потому что lower() зависит от локали кластера.
func firstMatchingName(rows pgx.Rows, name string) (int64, bool, error) {
	defer rows.Close()

	key := validation.MatchKey(name)
	for rows.Next() {
		var (
			id        int64
			candidate string
		)
		if err := rows.Scan(&id, &candidate); err != nil {
			return 0, false, err
		}
		if validation.MatchKey(candidate) == key {
			return id, true, nil
		}
	}
	return 0, false, rows.Err()
}
