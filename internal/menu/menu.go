package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"messhall/internal/meal"
)

// Days are the menu's weekdays in display order.
var Days = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var ErrItemNotFound = errors.New("menu item not found")

// Item is one dish on the menu.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsVeg       bool   `json:"is_veg"`
}

// Slot addresses one meal on one weekday.
type Slot struct {
	Day  string
	Meal meal.Type
}

// Week maps weekday -> meal key -> items.
type Week map[string]map[string][]Item

// Repository persists menu slots.
type Repository interface {
	MenuItems(ctx context.Context) (map[Slot][]Item, error)
	ReplaceMenuItems(ctx context.Context, slot Slot, items []Item) error
	AddMenuItem(ctx context.Context, slot Slot, item Item) error
	RemoveMenuItem(ctx context.Context, slot Slot, id string) (bool, error)
}

// Service edits the weekly menu.
type Service struct {
	repo Repository
}

// NewService creates a menu service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ParseSlot normalises a weekday name and meal type.
func ParseSlot(day, mealType string) (Slot, error) {
	m, err := meal.ParseType(mealType)
	if err != nil {
		return Slot{}, err
	}
	d, err := ParseDay(day)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Day: d, Meal: m}, nil
}

// ParseDay matches a weekday name case-insensitively against Days.
func ParseDay(day string) (string, error) {
	for _, d := range Days {
		if strings.EqualFold(d, strings.TrimSpace(day)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown day %q", day)
}

// Week returns the full menu with every day and meal present.
func (s *Service) Week(ctx context.Context) (Week, error) {
	stored, err := s.repo.MenuItems(ctx)
	if err != nil {
		return nil, err
	}
	week := make(Week, len(Days))
	for _, d := range Days {
		week[d] = make(map[string][]Item, len(meal.Types))
		for _, m := range meal.Types {
			items := stored[Slot{Day: d, Meal: m}]
			if items == nil {
				items = []Item{}
			}
			week[d][m.Key()] = items
		}
	}
	return week, nil
}

// Replace sets the items of one slot.
func (s *Service) Replace(ctx context.Context, slot Slot, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it, err := prepare(it)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := s.repo.ReplaceMenuItems(ctx, slot, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add appends an item to a slot.
func (s *Service) Add(ctx context.Context, slot Slot, item Item) (Item, error) {
	item, err := prepare(item)
	if err != nil {
		return Item{}, err
	}
	if err := s.repo.AddMenuItem(ctx, slot, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Remove deletes an item from a slot.
func (s *Service) Remove(ctx context.Context, slot Slot, id string) error {
	ok, err := s.repo.RemoveMenuItem(ctx, slot, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

func prepare(it Item) (Item, error) {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return Item{}, errors.New("item name required")
	}
	it.Description = strings.TrimSpace(it.Description)
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	return it, nil
}
