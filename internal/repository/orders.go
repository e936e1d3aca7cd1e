package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/orderbot/internal/model"
)

const orderColumns = `id, order_number, user_id, product_id, city_id, district_id, payment_method,
	amount_base, amount_currency, currency_code, status, created_at, expires_at, updated_at`

// CreateOrder выделяет следующий номер заявки и сохраняет заявку в статусе pending.
// Выделение номера и вставка выполняются в одной транзакции: строка счётчика
// блокируется до коммита, поэтому параллельные вызовы получают разные номера.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.NewOrder, initialNumber int64) (*model.Order, error) {
	var order *model.Order

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var number int64
		err := tx.QueryRow(ctx,
			`INSERT INTO order_counter (id, last_number) VALUES (1, $1)
			 ON CONFLICT (id) DO UPDATE
			 SET last_number = GREATEST(order_counter.last_number + 1, EXCLUDED.last_number)
			 RETURNING last_number`,
			initialNumber,
		).Scan(&number)
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO orders (order_number, user_id, product_id, city_id, district_id, payment_method,
				amount_base, amount_currency, currency_code, status, created_at, expires_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $11)
			 RETURNING `+orderColumns,
			number, o.UserID, o.ProductID, o.CityID, o.DistrictID, o.PaymentMethod,
			o.AmountBase, o.AmountCurrency, o.CurrencyCode, string(model.OrderStatusPending),
			o.CreatedAt, o.ExpiresAt,
		)
		order, err = scanOrder(row)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderByNumber возвращает заявку по номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// TransitionOrder переводит заявку из статуса from в статус to, только если
// текущий статус равен from. Возвращает false, если заявку уже перевели.
func (r *PostgresRepository) TransitionOrder(ctx context.Context, number int64, from, to model.OrderStatus) (bool, error) {
	if err := checkTransition(from, to); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = now()
		 WHERE order_number = $1 AND status = $2`,
		number, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return false, ErrOrderNotFound
	}
	return false, nil
}

func checkTransition(from, to model.OrderStatus) error {
	if from.IsTerminal() || !to.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ListPendingOrders возвращает заявки в статусе pending в порядке истечения срока оплаты.
func (r *PostgresRepository) ListPendingOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY expires_at, order_number`,
		string(model.OrderStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// OrderStats возвращает сводку по заявкам и пользователям.
func (r *PostgresRepository) OrderStats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM orders WHERE status = 'pending'),
			(SELECT count(*) FROM orders WHERE status = 'paid'),
			(SELECT count(*) FROM orders WHERE status = 'cancelled'),
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM users WHERE blocked)`,
	).Scan(&s.Total, &s.Pending, &s.Paid, &s.Cancelled, &s.Users, &s.BlockedUsers)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	return &s, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.ProductID, &o.CityID, &o.DistrictID, &o.PaymentMethod,
		&o.AmountBase, &o.AmountCurrency, &o.CurrencyCode, &status,
		&o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}
