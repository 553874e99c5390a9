package core

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"hostelcore/pkg/domain"
)

// AnnouncementInput is a notice posted by an administrator.
type AnnouncementInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Desc  string `json:"desc" validate:"max=4000"`
}

// PostAnnouncement publishes a notice to every student.
func (s *Service) PostAnnouncement(ctx context.Context, in AnnouncementInput) (Announcement, Result, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validateInput(in); err != nil {
		return Announcement{}, Result{}, err
	}
	var created Announcement
	res, err := s.run(ctx, "post_announcement", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateAnnouncement(Announcement{
			Title: in.Title,
			Desc:  in.Desc,
			Date:  s.now().Format(dateLayout),
		})
		return created.ID, err
	})
	return created, res, err
}

// DeleteAnnouncement withdraws a notice.
func (s *Service) DeleteAnnouncement(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_announcement", func(tx Transaction) (string, error) {
		return id, tx.DeleteAnnouncement(id)
	})
}

// ListAnnouncements returns notices newest first.
func (s *Service) ListAnnouncements(ctx context.Context) ([]Announcement, error) {
	var out []Announcement
	err := s.store.View(ctx, func(view TransactionView) error {
		out = newestFirst(view.ListAnnouncements())
		return nil
	})
	return out, err
}

func newestFirst(list []Announcement) []Announcement {
	out := slices.Clone(list)
	slices.Reverse(out)
	return out
}

// PublishFoodMenu replaces the weekly menu. Unknown meal sections and unnamed
// items are rejected.
func (s *Service) PublishFoodMenu(ctx context.Context, meals map[domain.Meal][]MenuItem) (FoodMenu, Result, error) {
	fields := make(map[string]string)
	clean := make(map[domain.Meal][]MenuItem, len(domain.Meals))
	for meal, items := range meals {
		if !slices.Contains(domain.Meals, meal) {
			fields[string(meal)] = "unknown meal"
			continue
		}
		for i, item := range items {
			item.Name = strings.TrimSpace(item.Name)
			if item.Name == "" {
				fields[string(meal)] = "item " + strconv.Itoa(i) + " name required"
				break
			}
			clean[meal] = append(clean[meal], item)
		}
	}
	if len(fields) > 0 {
		return FoodMenu{}, Result{}, &domain.ValidationError{Fields: fields}
	}
	var published FoodMenu
	res, err := s.run(ctx, "publish_food_menu", func(tx Transaction) (string, error) {
		var err error
		published, err = tx.SetFoodMenu(FoodMenu{Meals: clean})
		return string(EntityFoodMenu), err
	})
	return published, res, err
}

// FoodMenu returns the current menu. An unpublished menu has a zero UpdatedAt.
func (s *Service) FoodMenu(ctx context.Context) (FoodMenu, error) {
	var out FoodMenu
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.FoodMenu()
		return nil
	})
	return out, err
}
