package repo

import (
	"database/sql"
	"encoding/json"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) init() error {
	_, err := r.db.Exec(`CREATE SEQUENCE IF NOT EXISTS order_id_seq;
	CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		order_no TEXT UNIQUE,
		user_id BIGINT,
		restaurant_id BIGINT,
		restaurant_name TEXT,
		items TEXT,
		total_amount NUMERIC(12,2),
		delivery_fee NUMERIC(12,2),
		discount_amount NUMERIC(12,2),
		pay_amount NUMERIC(12,2),
		status TEXT,
		address TEXT,
		phone TEXT,
		remark TEXT,
		payment_method TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		paid_at TIMESTAMPTZ,
		delivery_time TIMESTAMPTZ
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS balances (
		user_id BIGINT PRIMARY KEY,
		amount NUMERIC(12,2)
	);`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS location_records (
		id INT PRIMARY KEY,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		address TEXT,
		resolved_at TIMESTAMPTZ
	);`)
	return err
}

func (r *PostgresRepo) NextID() (int64, error) {
	var id int64
	err := r.db.QueryRow(`SELECT nextval('order_id_seq')`).Scan(&id)
	return id, err
}

const orderColumns = `id,order_no,user_id,restaurant_id,restaurant_name,items,total_amount,delivery_fee,discount_amount,pay_amount,status,address,phone,remark,payment_method,created_at,updated_at,paid_at,delivery_time`

func (r *PostgresRepo) Put(o *domain.Order) error {
	items, _ := json.Marshal(o.Items)
	_, err := r.db.Exec(`INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET status=$11,remark=$14,payment_method=$15,updated_at=$17,paid_at=$18,delivery_time=$19`,
		o.ID, o.OrderNo, o.UserID, o.RestaurantID, o.RestaurantName, string(items),
		o.TotalAmount, o.DeliveryFee, o.DiscountAmount, o.PayAmount, string(o.Status),
		o.Address, o.Phone, o.Remark, o.PaymentMethod, o.CreatedAt, o.UpdatedAt, o.PaidAt, o.DeliveryTime)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var items string
	var paid, delivered sql.NullTime
	err := row.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.RestaurantID, &o.RestaurantName, &items,
		&o.TotalAmount, &o.DeliveryFee, &o.DiscountAmount, &o.PayAmount, (*string)(&o.Status),
		&o.Address, &o.Phone, &o.Remark, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt, &paid, &delivered)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(items), &o.Items)
	if paid.Valid {
		o.PaidAt = &paid.Time
	}
	if delivered.Valid {
		o.DeliveryTime = &delivered.Time
	}
	return &o, nil
}

func (r *PostgresRepo) Get(id int64) (*domain.Order, bool) {
	o, err := scanOrder(r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, false
	}
	return o, true
}

func (r *PostgresRepo) GetByNo(orderNo string) (*domain.Order, bool) {
	o, err := scanOrder(r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_no=$1`, orderNo))
	if err != nil {
		return nil, false
	}
	return o, true
}

func (r *PostgresRepo) ListByUser(userID int64, page, pageSize int) ([]domain.Order, int) {
	rows, err := r.db.Query(`SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0
	}
	defer rows.Close()
	out := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			continue
		}
		out = append(out, *o)
	}
	var total int
	_ = r.db.QueryRow(`SELECT COUNT(1) FROM orders WHERE user_id=$1`, userID).Scan(&total)
	return out, total
}

func (r *PostgresRepo) GetBalance(userID int64) (decimal.Decimal, bool) {
	var b decimal.Decimal
	if err := r.db.QueryRow(`SELECT amount FROM balances WHERE user_id=$1`, userID).Scan(&b); err != nil {
		return decimal.Zero, false
	}
	return b, true
}

func (r *PostgresRepo) PutBalance(userID int64, amount decimal.Decimal) error {
	_, err := r.db.Exec(`INSERT INTO balances (user_id,amount) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET amount=$2`, userID, amount)
	return err
}

// The location record is a process-wide singleton stored under id 1.
func (r *PostgresRepo) PutLocation(rec *domain.LocationRecord) error {
	_, err := r.db.Exec(`INSERT INTO location_records (id,latitude,longitude,address,resolved_at)
		VALUES (1,$1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET latitude=$1,longitude=$2,address=$3,resolved_at=$4`,
		rec.Latitude, rec.Longitude, rec.Address, rec.ResolvedAt)
	return err
}

func (r *PostgresRepo) GetLocation() (*domain.LocationRecord, bool) {
	var rec domain.LocationRecord
	var addr sql.NullString
	err := r.db.QueryRow(`SELECT latitude,longitude,address,resolved_at FROM location_records WHERE id=1`).
		Scan(&rec.Latitude, &rec.Longitude, &addr, &rec.ResolvedAt)
	if err != nil {
		return nil, false
	}
	if addr.Valid {
		rec.Address = &addr.String
	}
	return &rec, true
}

func (r *PostgresRepo) DeleteLocation() error {
	_, err := r.db.Exec(`DELETE FROM location_records WHERE id=1`)
	return err
}
