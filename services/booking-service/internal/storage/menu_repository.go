package storage

import (
	"context"
	"fmt"

	"github.com/yhd-salon/salonbook/libs/db"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
)

type MenuRepository struct {
	pool *db.Pool
}

func NewMenuRepository(pool *db.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// ListCategories returns categories in display order, each with its menus in display order.
func (r *MenuRepository) ListCategories(ctx context.Context, salonID string) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id::text, c.name, c.sort_order,
			m.id::text, m.name, m.duration_minutes, m.price, m.price_prefix, m.sort_order
		FROM menu_categories c
		LEFT JOIN menus m ON m.category_id = c.id AND m.active
		WHERE c.salon_id = $1
		ORDER BY c.sort_order, c.name, m.sort_order, m.name
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []model.Category
	index := map[string]int{}
	for rows.Next() {
		var c model.Category
		var menuID, menuName *string
		var duration, price, sortOrder *int
		var prefix *bool
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &menuID, &menuName, &duration, &price, &prefix, &sortOrder); err != nil {
			return nil, err
		}
		i, ok := index[c.ID]
		if !ok {
			categories = append(categories, c)
			i = len(categories) - 1
			index[c.ID] = i
		}
		if menuID == nil {
			continue
		}
		categories[i].Menus = append(categories[i].Menus, model.Menu{
			ID:              *menuID,
			CategoryID:      c.ID,
			Name:            deref(menuName),
			DurationMinutes: deref(duration),
			Price:           deref(price),
			PricePrefix:     deref(prefix),
			SortOrder:       deref(sortOrder),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return categories, nil
}

// GetMenus resolves ids to active menus, preserving the order of ids.
// Duplicate ids are kept; an unknown id yields ErrUnknownMenu.
func (r *MenuRepository) GetMenus(ctx context.Context, salonID string, ids []string) (model.Selection, error) {
	if len(ids) == 0 {
		return model.Selection{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT m.id::text, m.category_id::text, m.name, m.duration_minutes, m.price, m.price_prefix, m.sort_order
		FROM menus m
		JOIN menu_categories c ON c.id = m.category_id
		WHERE c.salon_id = $1 AND m.active AND m.id::text = ANY($2)
	`, salonID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[string]model.Menu{}
	for rows.Next() {
		var m model.Menu
		if err := rows.Scan(&m.ID, &m.CategoryID, &m.Name, &m.DurationMinutes, &m.Price, &m.PricePrefix, &m.SortOrder); err != nil {
			return nil, err
		}
		found[m.ID] = m
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	sel := make(model.Selection, 0, len(ids))
	for _, id := range ids {
		m, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMenu, id)
		}
		sel = append(sel, m)
	}
	return sel, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
