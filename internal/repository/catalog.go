package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// CreateCity создаёт город с вариантами написания.
func (r *PostgresRepository) CreateCity(ctx context.Context, name string, aliases []string) (*model.City, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	aliases = validation.NormalizeAliases(aliases)

	c := model.City{Name: name, Aliases: aliases}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO cities (name, aliases, match_keys) VALUES ($1, $2, $3) RETURNING id`,
		name, aliases, validation.CityMatchKeys(name, aliases),
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrCityExists, name)
		}
		return nil, fmt.Errorf("insert city: %w", err)
	}
	return &c, nil
}

// UpdateCity меняет название и варианты написания города.
func (r *PostgresRepository) UpdateCity(ctx context.Context, c model.City) error {
	name, err := validation.NormalizeName(c.Name)
	if err != nil {
		return err
	}

	aliases := validation.NormalizeAliases(c.Aliases)
	tag, err := r.pool.Exec(ctx,
		`UPDATE cities SET name = $2, aliases = $3, match_keys = $4 WHERE id = $1`,
		c.ID, name, aliases, validation.CityMatchKeys(name, aliases),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCityExists, name)
		}
		return fmt.Errorf("update city: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCityNotFound
	}
	return nil
}

// GetCity возвращает город по идентификатору.
func (r *PostgresRepository) GetCity(ctx context.Context, id int64) (*model.City, error) {
	var c model.City
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, aliases FROM cities WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Aliases)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, fmt.Errorf("get city: %w", err)
	}
	return &c, nil
}

// ListCities возвращает все города.
func (r *PostgresRepository) ListCities(ctx context.Context) ([]model.City, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, aliases FROM cities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select cities: %w", err)
	}
	defer rows.Close()

	var res []model.City
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Aliases); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// FindCityByNameOrAlias ищет город по названию или варианту написания без учёта регистра.
// При совпадении нескольких городов возвращается созданный первым.
func (r *PostgresRepository) FindCityByNameOrAlias(ctx context.Context, query string) (*model.City, error) {
	key := validation.MatchKey(query)
	if key == "" {
		return nil, ErrCityNotFound
	}

	var c model.City
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, aliases
		 FROM cities
		 WHERE $1 = ANY(match_keys)
		 ORDER BY id
		 LIMIT 1`,
		key,
	).Scan(&c.ID, &c.Name, &c.Aliases)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, fmt.Errorf("find city: %w", err)
	}
	return &c, nil
}

// DeleteCity удаляет город вместе с районами и их связями с товарами. Товары остаются.
func (r *PostgresRepository) DeleteCity(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM district_products
			 WHERE district_id IN (SELECT id FROM districts WHERE city_id = $1)`, id,
		); err != nil {
			return fmt.Errorf("delete city associations: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM districts WHERE city_id = $1`, id); err != nil {
			return fmt.Errorf("delete city districts: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM cities WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete city: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCityNotFound
		}
		return nil
	})
}

// CreateProduct создаёт товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, name string, price decimal.Decimal) (*model.Product, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePrice(price); err != nil {
		return nil, err
	}

	p := model.Product{Name: name, Price: price}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO products (name, price) VALUES ($1, $2) RETURNING id`,
		name, price,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &p, nil
}

// UpdateProduct меняет название и цену товара. Уже созданные заявки не пересчитываются.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	name, err := validation.NormalizeName(p.Name)
	if err != nil {
		return err
	}
	if err := validation.ValidatePrice(p.Price); err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, price = $3 WHERE id = $1`,
		p.ID, name, p.Price,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts возвращает все товары каталога.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	return r.queryProducts(ctx, `SELECT id, name, price FROM products ORDER BY id`)
}

// ProductsAvailableInCity возвращает товары, привязанные хотя бы к одному району города.
func (r *PostgresRepository) ProductsAvailableInCity(ctx context.Context, cityID int64) ([]model.Product, error) {
	return r.queryProducts(ctx,
		`SELECT DISTINCT p.id, p.name, p.price
		 FROM products p
		 JOIN district_products dp ON dp.product_id = p.id
		 JOIN districts d ON d.id = dp.district_id
		 WHERE d.city_id = $1
		 ORDER BY p.id`,
		cityID,
	)
}

func (r *PostgresRepository) queryProducts(ctx context.Context, sql string, args ...any) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteProduct удаляет товар вместе со всеми связями с районами.
// Заявки сохраняют идентификатор удалённого товара.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM district_products WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("delete product associations: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProductNotFound
		}
		return nil
	})
}

// CreateDistrict создаёт район в городе.
func (r *PostgresRepository) CreateDistrict(ctx context.Context, cityID int64, name string) (*model.District, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	d := model.District{Name: name, CityID: cityID}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO districts (name, city_id) VALUES ($1, $2) RETURNING id`,
		name, cityID,
	).Scan(&d.ID)
	if err != nil {
		if _, ok := foreignKeyConstraint(err); ok {
			return nil, ErrCityNotFound
		}
		return nil, fmt.Errorf("insert district: %w", err)
	}
	return &d, nil
}

// GetDistrict возвращает район по идентификатору.
func (r *PostgresRepository) GetDistrict(ctx context.Context, id int64) (*model.District, error) {
	var d model.District
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, city_id FROM districts WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.CityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDistrictNotFound
		}
		return nil, fmt.Errorf("get district: %w", err)
	}
	return &d, nil
}

// ListDistricts возвращает районы города.
func (r *PostgresRepository) ListDistricts(ctx context.Context, cityID int64) ([]model.District, error) {
	return r.queryDistricts(ctx,
		`SELECT id, name, city_id FROM districts WHERE city_id = $1 ORDER BY id`, cityID)
}

// DistrictsOfferingProduct возвращает районы города, в которых доступен товар.
func (r *PostgresRepository) DistrictsOfferingProduct(ctx context.Context, cityID, productID int64) ([]model.District, error) {
	return r.queryDistricts(ctx,
		`SELECT d.id, d.name, d.city_id
		 FROM districts d
		 JOIN district_products dp ON dp.district_id = d.id
		 WHERE d.city_id = $1 AND dp.product_id = $2
		 ORDER BY d.id`,
		cityID, productID,
	)
}

func (r *PostgresRepository) queryDistricts(ctx context.Context, sql string, args ...any) ([]model.District, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select districts: %w", err)
	}
	defer rows.Close()

	res := []model.District{}
	for rows.Next() {
		var d model.District
		if err := rows.Scan(&d.ID, &d.Name, &d.CityID); err != nil {
			return nil, fmt.Errorf("scan district: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteDistrict удаляет район вместе со связями с товарами.
func (r *PostgresRepository) DeleteDistrict(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM district_products WHERE district_id = $1`, id); err != nil {
			return fmt.Errorf("delete district associations: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM districts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete district: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDistrictNotFound
		}
		return nil
	})
}

// AddAssociation делает товар доступным в районе. Возвращает false, если связь уже была.
func (r *PostgresRepository) AddAssociation(ctx context.Context, districtID, productID int64) (bool, error) {
	return addAssociation(ctx, r.pool, districtID, productID)
}

func addAssociation(ctx context.Context, db execer, districtID, productID int64) (bool, error) {
	tag, err := db.Exec(ctx,
		`INSERT INTO district_products (district_id, product_id) VALUES ($1, $2)
		 ON CONFLICT (district_id, product_id) DO NOTHING`,
		districtID, productID,
	)
	if err != nil {
		if constraint, ok := foreignKeyConstraint(err); ok {
			if constraint == "district_products_district_fk" {
				return false, ErrDistrictNotFound
			}
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("insert association: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveAssociation убирает товар из района. Возвращает false, если связи не было.
func (r *PostgresRepository) RemoveAssociation(ctx context.Context, districtID, productID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM district_products WHERE district_id = $1 AND product_id = $2`,
		districtID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("delete association: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreatePaymentMethod создаёт способ оплаты.
func (r *PostgresRepository) CreatePaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error) {
	pm, err := normalizePaymentMethod(pm)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO payment_methods (name, code, rate, address, enabled)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		pm.Name, pm.Code, pm.Rate, pm.Address, pm.Enabled,
	).Scan(&pm.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentMethodExists, pm.Code)
		}
		return nil, fmt.Errorf("insert payment method: %w", err)
	}
	return &pm, nil
}

func normalizePaymentMethod(pm model.PaymentMethod) (model.PaymentMethod, error) {
	var err error
	if pm.Name, err = validation.NormalizeName(pm.Name); err != nil {
		return pm, err
	}
	if pm.Code, err = validation.NormalizePaymentCode(pm.Code); err != nil {
		return pm, err
	}
	if err := validation.ValidateRate(pm.Rate); err != nil {
		return pm, err
	}
	return pm, nil
}

// GetPaymentMethodByCode возвращает способ оплаты по коду.
func (r *PostgresRepository) GetPaymentMethodByCode(ctx context.Context, code string) (*model.PaymentMethod, error) {
	var pm model.PaymentMethod
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, rate, address, enabled FROM payment_methods WHERE code = $1`,
		validation.MatchKey(code),
	).Scan(&pm.ID, &pm.Name, &pm.Code, &pm.Rate, &pm.Address, &pm.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	return &pm, nil
}

// ListPaymentMethods возвращает способы оплаты; enabledOnly оставляет только включённые.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, enabledOnly bool) ([]model.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, code, rate, address, enabled
		 FROM payment_methods
		 WHERE enabled OR NOT $1
		 ORDER BY id`,
		enabledOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}
	defer rows.Close()

	res := []model.PaymentMethod{}
	for rows.Next() {
		var pm model.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.Name, &pm.Code, &pm.Rate, &pm.Address, &pm.Enabled); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		res = append(res, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdatePaymentRate меняет курс способа оплаты. Суммы существующих заявок не меняются.
func (r *PostgresRepository) UpdatePaymentRate(ctx context.Context, code string, rate decimal.Decimal) error {
	if err := validation.ValidateRate(rate); err != nil {
		return err
	}
	return r.updatePaymentMethod(ctx, `UPDATE payment_methods SET rate = $2 WHERE code = $1`, code, rate)
}

// UpdatePaymentAddress меняет адрес или реквизиты для оплаты.
func (r *PostgresRepository) UpdatePaymentAddress(ctx context.Context, code, address string) error {
	return r.updatePaymentMethod(ctx, `UPDATE payment_methods SET address = $2 WHERE code = $1`, code, address)
}

// SetPaymentEnabled включает или выключает способ оплаты.
func (r *PostgresRepository) SetPaymentEnabled(ctx context.Context, code string, enabled bool) error {
	return r.updatePaymentMethod(ctx, `UPDATE payment_methods SET enabled = $2 WHERE code = $1`, code, enabled)
}

func (r *PostgresRepository) updatePaymentMethod(ctx context.Context, sql, code string, value any) error {
	tag, err := r.pool.Exec(ctx, sql, validation.MatchKey(code), value)
	if err != nil {
		return fmt.Errorf("update payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentMethodNotFound
	}
	return nil
}

// DeletePaymentMethod удаляет способ оплаты без проверки ссылающихся заявок.
func (r *PostgresRepository) DeletePaymentMethod(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payment_methods WHERE code = $1`, validation.MatchKey(code))
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentMethodNotFound
	}
	return nil
}
