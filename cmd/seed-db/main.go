// Command seed-db provisions a development database: schema, product
// catalog, a demo member, and a pre-filled cart ready for checkout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pilldrop/commerce-api/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		memberEmail  string
		memberID     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&memberEmail, "member-email", "demo@pilldrop.dev", "email of the demo member to seed")
	flag.StringVar(&memberID, "member-id", "", "fixed ID for the demo member (random when empty)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if memberID == "" {
		memberID = uuid.New().String()
	}

	if err := run(ctx, databaseURL, productsFile, memberEmail, memberID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, memberEmail, memberID string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := seedProducts(ctx, pool, productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}

	memberID, err = seedMember(ctx, pool, memberEmail, memberID)
	if err != nil {
		return errors.Wrap(err, "seed member")
	}

	if err := seedCart(ctx, pool, memberID, products); err != nil {
		return errors.Wrap(err, "seed cart")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) ([]productJSON, error) {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, sku, name, price, category, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				sku = EXCLUDED.sku,
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				category = EXCLUDED.category,
				active = TRUE`,
			p.ID, p.SKU, p.Name, p.Price, p.Category,
		); err != nil {
			return nil, errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return products, nil
}

func seedMember(ctx context.Context, pool *pgxpool.Pool, email, id string) (string, error) {
	slog.Info("seeding demo member", slog.String("email", email))

	// Reuse the existing member on repeated runs, keyed by email.
	row := pool.QueryRow(ctx, `
		INSERT INTO members (id, email, name, phone)
		VALUES ($1, $2, 'Demo Member', '010-0000-0000')
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		id, email,
	)
	var memberID string
	if err := row.Scan(&memberID); err != nil {
		return "", errors.Wrap(err, "upsert member")
	}

	slog.Info("seeded member", slog.String("id", memberID))
	return memberID, nil
}

func seedCart(ctx context.Context, pool *pgxpool.Pool, memberID string, products []productJSON) error {
	slog.Info("seeding cart", slog.String("member_id", memberID))

	cartID := uuid.New().String()
	row := pool.QueryRow(ctx, `
		INSERT INTO carts (id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (member_id) DO UPDATE SET member_id = EXCLUDED.member_id
		RETURNING id`,
		cartID, memberID,
	)
	if err := row.Scan(&cartID); err != nil {
		return errors.Wrap(err, "upsert cart")
	}

	for i, p := range products {
		if i >= 2 {
			break
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO cart_items (id, cart_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			uuid.New().String(), cartID, p.ID, i+1,
		); err != nil {
			return errors.Wrapf(err, "add cart item %s", p.ID)
		}
	}

	slog.Info("seeded cart", slog.String("cart_id", cartID))
	return nil
}
