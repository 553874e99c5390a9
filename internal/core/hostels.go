package core

import (
	"context"
	"strings"

	"hostelcore/pkg/domain"
)

// HostelInput describes a hostel as administrators create or edit it.
// Availability is not part of the input: it starts at the totals and is
// moved only by request approvals.
type HostelInput struct {
	Name           string            `json:"name" validate:"required,max=120"`
	Type           domain.HostelType `json:"type" validate:"required,oneof=Boys Girls"`
	Description    string            `json:"description" validate:"max=2000"`
	Facilities     []string          `json:"facilities" validate:"dive,required"`
	Images         []string          `json:"images"`
	TotalRooms     int               `json:"totalRooms" validate:"gte=0"`
	TotalBeds      int               `json:"totalBeds" validate:"gte=0"`
	TotalBathrooms int               `json:"totalBathrooms" validate:"gte=0"`
}

func (in *HostelInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.TotalBeds == 0 {
		in.TotalBeds = in.TotalRooms
	}
}

// CreateHostel adds a hostel with every room and bed available.
func (s *Service) CreateHostel(ctx context.Context, in HostelInput) (Hostel, Result, error) {
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return Hostel{}, Result{}, err
	}
	var created Hostel
	res, err := s.run(ctx, "create_hostel", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateHostel(Hostel{
			Name:           in.Name,
			Type:           in.Type,
			Description:    in.Description,
			Facilities:     append([]string(nil), in.Facilities...),
			Images:         append([]string(nil), in.Images...),
			TotalRooms:     in.TotalRooms,
			AvailableRooms: in.TotalRooms,
			TotalBeds:      in.TotalBeds,
			AvailableBeds:  in.TotalBeds,
			TotalBathrooms: in.TotalBathrooms,
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateHostel edits a hostel's descriptive fields and totals. Available
// counters are preserved; shrinking a total below its available counter is
// blocked by the occupancy rules.
func (s *Service) UpdateHostel(ctx context.Context, id string, in HostelInput) (Hostel, Result, error) {
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return Hostel{}, Result{}, err
	}
	var updated Hostel
	res, err := s.run(ctx, "update_hostel", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateHostel(id, func(h *Hostel) error {
			h.Name = in.Name
			h.Type = in.Type
			h.Description = in.Description
			h.Facilities = append([]string(nil), in.Facilities...)
			h.Images = append([]string(nil), in.Images...)
			h.TotalRooms = in.TotalRooms
			h.TotalBeds = in.TotalBeds
			h.TotalBathrooms = in.TotalBathrooms
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteHostel removes a hostel no student is assigned to.
func (s *Service) DeleteHostel(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_hostel", func(tx Transaction) (string, error) {
		return id, tx.DeleteHostel(id)
	})
}

// GetHostel returns one hostel.
func (s *Service) GetHostel(ctx context.Context, id string) (Hostel, error) {
	var out Hostel
	err := s.store.View(ctx, func(view TransactionView) error {
		h, ok := view.FindHostel(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityHostel, ID: id}
		}
		out = h
		return nil
	})
	return out, err
}

// ListHostels returns every hostel. When gender is set only hostels that
// accept it are returned.
func (s *Service) ListHostels(ctx context.Context, gender domain.Gender) ([]Hostel, error) {
	var out []Hostel
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, h := range view.ListHostels() {
			if gender == "" || h.Accepts(gender) {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}
