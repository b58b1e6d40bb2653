package store

import (
	"context"
	"fmt"
	"strings"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, sku, name, category, sub_category, description, unit, supplier,
	cost_price, selling_price, quantity, reorder_level, archived, created_at, updated_at`

// GetProduct retrieves a product by ID
func (q queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, classifyError(err)
	}
	return &product, nil
}

// GetProductForUpdate retrieves a product and locks its row until the transaction ends
func (q queries) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, classifyError(err)
	}
	return &product, nil
}

// ListProducts returns one page of products and the total match count
func (q queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	conditions := []string{}
	args := []interface{}{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if !f.IncludeArchived {
		conditions = append(conditions, "archived = FALSE")
	}
	if f.Query != "" {
		add("(name ILIKE $%[1]d OR sku ILIKE $%[1]d)", "%"+f.Query+"%")
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := sqlx.GetContext(ctx, q.ext, &count, "SELECT count(*) FROM products"+whereClause, args...); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(f.Page, f.Limit, DefaultProductLimit)
	query := "SELECT " + productColumns + " FROM products" + whereClause +
		fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, q.ext, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, count, nil
}

// CreateProduct inserts a product
func (q queries) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := q.writable(); err != nil {
		return err
	}

	query, args, err := q.ext.BindNamed(`
		INSERT INTO products (sku, name, category, sub_category, description, unit, supplier,
			cost_price, selling_price, quantity, reorder_level)
		VALUES (:sku, :name, :category, :sub_category, :description, :unit, :supplier,
			:cost_price, :selling_price, :quantity, :reorder_level)
		RETURNING id, archived, created_at, updated_at`, p)
	if err != nil {
		return err
	}

	return classifyError(sqlx.GetContext(ctx, q.ext, p, query, args...))
}

// UpdateProduct writes every field except quantity
func (q queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	if err := q.writable(); err != nil {
		return err
	}

	query, args, err := q.ext.BindNamed(`
		UPDATE products SET
			name = :name, category = :category, sub_category = :sub_category,
			description = :description, unit = :unit, supplier = :supplier,
			cost_price = :cost_price, selling_price = :selling_price,
			reorder_level = :reorder_level, updated_at = NOW()
		WHERE id = :id
		RETURNING updated_at`, p)
	if err != nil {
		return err
	}

	return classifyError(sqlx.GetContext(ctx, q.ext, &p.UpdatedAt, query, args...))
}

// SetQuantity stores a new quantity for the product
func (q queries) SetQuantity(ctx context.Context, p *models.Product, quantity int) error {
	if err := q.writable(); err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("negative quantity %d for product %d", quantity, p.ID)
	}

	err := sqlx.GetContext(ctx, q.ext, &p.UpdatedAt,
		"UPDATE products SET quantity = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		quantity, p.ID)
	if err != nil {
		return classifyError(err)
	}
	p.Quantity = quantity
	return nil
}

// ArchiveProduct soft-deletes a product
func (q queries) ArchiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	if err := q.writable(); err != nil {
		return nil, err
	}

	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"UPDATE products SET archived = TRUE, updated_at = NOW() WHERE id = $1 RETURNING "+productColumns, id)
	if err != nil {
		return nil, classifyError(err)
	}
	return &product, nil
}
