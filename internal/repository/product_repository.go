package repository

import (
	"context"
	"database/sql"
	"fmt"

	"provchain/internal/domain"
)

// ProductRepository defines the interface for product data access. Every
// mutating method commits the field change and its checkpoint append as one
// transaction, or not at all.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product, checkpoint domain.Checkpoint) (int64, error)
	Transfer(ctx context.Context, id int64, newOwner domain.Identity, newLocation string, checkpoint domain.Checkpoint) error
	Verify(ctx context.Context, id int64, checkpoint domain.Checkpoint) error
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	Count(ctx context.Context) (int64, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create allocates the next sequential product id from the registry counter
// and inserts the product together with its creation checkpoint. The counter
// row is locked by the UPDATE, so concurrent creates serialize and the
// sequence stays gapless.
func (r *productRepository) Create(ctx context.Context, product *domain.Product, checkpoint domain.Checkpoint) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin create transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		UPDATE registry_counter
		SET last_product_id = last_product_id + 1
		WHERE id = 1
		RETURNING last_product_id
	`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate product id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, manufacturer_name, manufactured_at, current_location, current_owner, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		id,
		product.Name,
		product.ManufacturerName,
		product.ManufacturedAt,
		product.CurrentLocation,
		product.CurrentOwner,
		product.Verified,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}

	if err := appendCheckpoint(ctx, tx, id, checkpoint); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit create transaction: %w", err)
	}

	return id, nil
}

// Transfer updates the product's owner and location and appends the transfer
// checkpoint in the same transaction.
func (r *productRepository) Transfer(ctx context.Context, id int64, newOwner domain.Identity, newLocation string, checkpoint domain.Checkpoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transfer transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET current_owner = $2, current_location = $3
		WHERE id = $1
	`, id, newOwner, newLocation)
	if err != nil {
		return fmt.Errorf("failed to transfer product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	if err := appendCheckpoint(ctx, tx, id, checkpoint); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer transaction: %w", err)
	}

	return nil
}

// Verify sets the verified flag and appends the verification checkpoint in
// the same transaction. The flag only ever moves from false to true.
func (r *productRepository) Verify(ctx context.Context, id int64, checkpoint domain.Checkpoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin verify transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET verified = TRUE
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to verify product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	if err := appendCheckpoint(ctx, tx, id, checkpoint); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verify transaction: %w", err)
	}

	return nil
}

// appendCheckpoint inserts the next checkpoint for the product, oldest first.
// The sequence number is derived inside the transaction so the log is never
// reordered.
func appendCheckpoint(ctx context.Context, tx *sql.Tx, productID int64, checkpoint domain.Checkpoint) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO product_checkpoints (product_id, seq, event, location, actor, recorded_at)
		VALUES (
			$1,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM product_checkpoints WHERE product_id = $1),
			$2, $3, $4, $5
		)
	`,
		productID,
		checkpoint.Event,
		checkpoint.Location,
		checkpoint.Actor,
		checkpoint.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return nil
}

// FindByID retrieves a product and its ordered checkpoint log. Both reads run
// inside one repeatable-read transaction, so the fields and the log always
// come from the same committed state even while a mutation lands in between.
func (r *productRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	product := &domain.Product{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, manufacturer_name, manufactured_at, current_location, current_owner, verified
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID,
		&product.Name,
		&product.ManufacturerName,
		&product.ManufacturedAt,
		&product.CurrentLocation,
		&product.CurrentOwner,
		&product.Verified,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, event, location, actor, recorded_at
		FROM product_checkpoints
		WHERE product_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cp domain.Checkpoint
		if err := rows.Scan(&cp.Seq, &cp.Event, &cp.Location, &cp.Actor, &cp.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		product.Checkpoints = append(product.Checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit read transaction: %w", err)
	}

	return product, nil
}

// Count returns the last assigned product id, which equals the total number
// of products ever created.
func (r *productRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT last_product_id FROM registry_counter WHERE id = 1
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read product counter: %w", err)
	}
	return count, nil
}
