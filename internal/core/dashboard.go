package core

import (
	"context"
	"math"

	"hostelcore/pkg/domain"
)

// HostelOccupancy summarises one hostel for the admin dashboard.
type HostelOccupancy struct {
	HostelID       string  `json:"hostelId"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	TotalRooms     int     `json:"totalRooms"`
	AvailableRooms int     `json:"availableRooms"`
	Residents      int     `json:"residents"`
	Percent        float64 `json:"occupancyPercent"`
}

// Dashboard aggregates the counters shown on the admin overview.
type Dashboard struct {
	Students        int               `json:"students"`
	Hostels         int               `json:"hostels"`
	PendingRequests int               `json:"pendingRequests"`
	PendingLeaves   int               `json:"pendingLeaves"`
	OpenComplaints  int               `json:"openComplaints"`
	Occupancy       []HostelOccupancy `json:"occupancy"`
}

// Dashboard computes the admin overview from one consistent snapshot.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	err := s.store.View(ctx, func(view TransactionView) error {
		students := view.ListStudents()
		hostels := view.ListHostels()
		out.Students = len(students)
		out.Hostels = len(hostels)
		for _, r := range view.ListAllocationRequests() {
			if r.Status == domain.RequestPending {
				out.PendingRequests++
			}
		}
		for _, l := range view.ListLeaveRequests() {
			if l.Status == domain.RequestPending {
				out.PendingLeaves++
			}
		}
		for _, c := range view.ListComplaints() {
			if c.Status != domain.ComplaintResolved {
				out.OpenComplaints++
			}
		}
		residents := make(map[string]int, len(hostels))
		for _, st := range students {
			if st.Resident() && st.HostelID != nil {
				residents[*st.HostelID]++
			}
		}
		out.Occupancy = make([]HostelOccupancy, 0, len(hostels))
		for _, h := range hostels {
			out.Occupancy = append(out.Occupancy, HostelOccupancy{
				HostelID:       h.ID,
				Name:           h.Name,
				Type:           string(h.Type),
				TotalRooms:     h.TotalRooms,
				AvailableRooms: h.AvailableRooms,
				Residents:      residents[h.ID],
				Percent:        occupancyPercent(h),
			})
		}
		return nil
	})
	return out, err
}

func occupancyPercent(h Hostel) float64 {
	if h.TotalRooms <= 0 {
		return 0
	}
	pct := float64(h.OccupiedRooms()) / float64(h.TotalRooms) * 100
	return math.Round(pct*10) / 10
}
