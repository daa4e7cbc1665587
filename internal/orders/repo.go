package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// NewOrder is one validated checkout attempt ready to persist.
type NewOrder struct {
	CheckoutRef         string // idempotency key, scoped to one cart session
	UserID              string
	DeliveryMethod      string
	DeliveryAddress     string
	Phone               string
	SpecialInstructions string
	Items               []NewItem
}

type NewItem struct {
	MenuItemID          *string
	Qty                 int
	Price               float64 // used only when MenuItemID is nil
	Customization       []byte
	SpecialInstructions string
}

type Created struct {
	OrderID string
	Number  int64
	Total   float64
	Existed bool
}

type AdminFilter struct {
	Status *Status
	From   *time.Time
	To     *time.Time
}

const orderColumns = `id, order_number, user_id, status, payment_status, total_amount,
	COALESCE(delivery_method,''), COALESCE(delivery_address,''), COALESCE(phone,''),
	COALESCE(special_instructions,''), COALESCE(checkout_id,''), created_at, updated_at`

// CreateOrderTx persists one order plus its line items atomically.
// Idempotent via checkout_ref: a second call for the same checkout attempt
// returns the existing order instead of creating another one.
// Prices for menu-backed items are snapshotted from menu_items inside the
// transaction; client prices are trusted only for customized items.
func (r *Repo) CreateOrderTx(ctx context.Context, in NewOrder) (Created, error) {
	var out Created
	row := r.DB.QueryRow(ctx, `SELECT id, order_number, total_amount FROM orders WHERE checkout_ref=$1`, in.CheckoutRef)
	if err := row.Scan(&out.OrderID, &out.Number, &out.Total); err == nil {
		out.Existed = true
		return out, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Created{}, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Created{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	menuIDs := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it.MenuItemID != nil {
			menuIDs = append(menuIDs, *it.MenuItemID)
		}
	}

	type priced struct {
		price     float64
		available bool
	}
	prices := map[string]priced{}
	if len(menuIDs) > 0 {
		rows, err := tx.Query(ctx, `SELECT id, price, available FROM menu_items WHERE id = ANY($1)`, menuIDs)
		if err != nil {
			return Created{}, err
		}
		for rows.Next() {
			var id string
			var p priced
			if err := rows.Scan(&id, &p.price, &p.available); err != nil {
				rows.Close()
				return Created{}, err
			}
			prices[id] = p
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Created{}, err
		}
	}

	var total float64
	for i := range in.Items {
		it := &in.Items[i]
		if it.Qty <= 0 {
			return Created{}, fmt.Errorf("%w: invalid qty", ErrValidation)
		}
		if it.MenuItemID != nil {
			p, ok := prices[*it.MenuItemID]
			if !ok {
				return Created{}, fmt.Errorf("%w: menu item not found: %s", ErrValidation, *it.MenuItemID)
			}
			if !p.available {
				return Created{}, fmt.Errorf("%w: menu item not available: %s", ErrValidation, *it.MenuItemID)
			}
			it.Price = p.price
		}
		total += it.Price * float64(it.Qty)
	}

	out.OrderID = uuid.NewString()
	out.Total = total
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, checkout_ref, user_id, status, payment_status, total_amount,
		                   delivery_method, delivery_address, phone, special_instructions)
		VALUES ($1,$2,$3,'draft','awaiting_payment',$4,$5,NULLIF($6,''),$7,NULLIF($8,''))
		RETURNING order_number
	`, out.OrderID, in.CheckoutRef, in.UserID, total,
		in.DeliveryMethod, in.DeliveryAddress, in.Phone, in.SpecialInstructions).Scan(&out.Number)
	if err != nil {
		// checkout_ref is UNIQUE; a concurrent submission that slipped past
		// the pre-check above lost the race, return the winner's order
		if isUniqueViolation(err) {
			var ex Created
			row := r.DB.QueryRow(ctx, `SELECT id, order_number, total_amount FROM orders WHERE checkout_ref=$1`, in.CheckoutRef)
			if scanErr := row.Scan(&ex.OrderID, &ex.Number, &ex.Total); scanErr == nil {
				ex.Existed = true
				return ex, nil
			}
		}
		return Created{}, err
	}

	for _, it := range in.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, menu_item_id, quantity, price, customization, special_instructions)
			VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`,
			out.OrderID, it.MenuItemID, it.Qty, it.Price, it.Customization, it.SpecialInstructions,
		)
		if err != nil {
			return Created{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Created{}, err
	}
	return out, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID).Scan(
		&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentStatus, &o.Total,
		&o.DeliveryMethod, &o.DeliveryAddress, &o.Phone,
		&o.SpecialInstructions, &o.CheckoutID, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, menu_item_id, quantity, price, customization, COALESCE(special_instructions,'')
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Qty, &it.Price, &it.Customization, &it.SpecialInstructions); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *Repo) ListAdmin(ctx context.Context, f AdminFilter) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	var conds []string
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentStatus, &o.Total,
			&o.DeliveryMethod, &o.DeliveryAddress, &o.Phone,
			&o.SpecialInstructions, &o.CheckoutID, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkPaid transitions payment to paid and the order to confirmed, but only
// from a state the payment machine allows. A no-op with current=paid means a
// duplicate delivery; any other no-op is an anomaly for the caller to log.
func (r *Repo) MarkPaid(ctx context.Context, orderID string) (changed bool, current PaymentStatus, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status='paid', status='confirmed', updated_at=now()
		WHERE id=$1 AND payment_status IN ('awaiting_payment','failed') AND status IN ('draft','pending')`, orderID)
	if err != nil {
		return false, "", err
	}
	if ct.RowsAffected() == 1 {
		return true, PaymentPaid, nil
	}
	current, err = r.paymentStatus(ctx, orderID)
	return false, current, err
}

// MarkPaymentFailed records a failed payment; the order itself stays
// draft/pending so the customer can retry. Never moves backward from paid.
func (r *Repo) MarkPaymentFailed(ctx context.Context, orderID string) (changed bool, current PaymentStatus, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status='failed', updated_at=now()
		WHERE id=$1 AND payment_status='awaiting_payment'`, orderID)
	if err != nil {
		return false, "", err
	}
	if ct.RowsAffected() == 1 {
		return true, PaymentFailed, nil
	}
	current, err = r.paymentStatus(ctx, orderID)
	return false, current, err
}

func (r *Repo) paymentStatus(ctx context.Context, orderID string) (PaymentStatus, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT payment_status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return PaymentStatus(s), nil
}

// Cancel lets the owning customer cancel an order that was never paid.
func (r *Repo) Cancel(ctx context.Context, orderID, userID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status='cancelled', updated_at=now()
		WHERE id=$1 AND user_id=$2 AND status IN ('draft','pending') AND payment_status <> 'paid'`, orderID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1 AND user_id=$2)`, orderID, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrNotCancellable
}

// AdvanceStatus applies a staff transition, guarded by the status machine and
// a conditional update on the state that was read.
func (r *Repo) AdvanceStatus(ctx context.Context, orderID string, to Status) (Order, error) {
	o, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, o.Status, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`, orderID, to, o.Status)
	if err != nil {
		return Order{}, err
	}
	if ct.RowsAffected() != 1 {
		return Order{}, fmt.Errorf("%w: concurrent update on %s", ErrBadTransition, orderID)
	}
	o.Status = to
	return o, nil
}

func (r *Repo) SetCheckoutID(ctx context.Context, orderID, checkoutID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET checkout_id=$2, updated_at=now() WHERE id=$1`, orderID, checkoutID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) ListMenu(ctx context.Context) ([]MenuItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price, available, created_at, updated_at
	                              FROM menu_items WHERE available ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteEmptyDrafts removes draft/pending orders past the age cutoff that
// never got any line items (a failed item insert left them behind).
func (r *Repo) DeleteEmptyDrafts(ctx context.Context, olderThan time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM orders o
		WHERE o.status IN ('draft','pending') AND o.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id)`, olderThan)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// CancelledOrder identifies one order the sweep expired, so the caller can
// fan the transition out to subscribers.
type CancelledOrder struct {
	ID     string
	UserID string
}

// CancelStaleAwaiting expires draft/pending orders that never saw a payment
// outcome and returns the ones it cancelled. Conditional on awaiting_payment
// so a webhook that lands concurrently wins.
func (r *Repo) CancelStaleAwaiting(ctx context.Context, olderThan time.Time) ([]CancelledOrder, error) {
	rows, err := r.DB.Query(ctx, `
		UPDATE orders SET status='cancelled', updated_at=now()
		WHERE status IN ('draft','pending') AND payment_status='awaiting_payment' AND created_at < $1
		RETURNING id, user_id`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CancelledOrder
	for rows.Next() {
		var c CancelledOrder
		if err := rows.Scan(&c.ID, &c.UserID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
