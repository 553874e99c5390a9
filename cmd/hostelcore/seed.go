package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

var seedHostels = []core.HostelInput{
	{Name: "Banyan", Type: domain.HostelTypeBoys, Description: "North campus block", Facilities: []string{"Wi-Fi", "Laundry"}, TotalRooms: 40, TotalBeds: 80, TotalBathrooms: 12},
	{Name: "Lotus", Type: domain.HostelTypeGirls, Description: "Near the library", Facilities: []string{"Wi-Fi", "Gym"}, TotalRooms: 30, TotalBeds: 60, TotalBathrooms: 10},
}

var seedStudents = []core.RegisterStudentInput{
	{RegNo: "21CS001", Name: "Arjun Nair", Department: "CSE", Year: "2", Email: "arjun@example.edu", Gender: domain.GenderMale},
	{RegNo: "21EC014", Name: "Meera Iyer", Department: "ECE", Year: "3", Email: "meera@example.edu", Gender: domain.GenderFemale},
	{RegNo: "22ME007", Name: "Rahul Das", Department: "MECH", Year: "1", Email: "rahul@example.edu", Gender: domain.GenderMale},
}

func newSeedCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample hostels and students into an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				hostels, students, err := seed(ctx, a.svc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d hostels and %d students\n", hostels, students)
				return nil
			})
		},
	}
}

// seed is idempotent: hostels are matched by name and students by regNo.
func seed(ctx context.Context, svc *core.Service) (int, int, error) {
	existing, err := svc.ListHostels(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	names := make(map[string]bool, len(existing))
	for _, h := range existing {
		names[h.Name] = true
	}
	hostels := 0
	for _, in := range seedHostels {
		if names[in.Name] {
			continue
		}
		if _, _, err := svc.CreateHostel(ctx, in); err != nil {
			return hostels, 0, fmt.Errorf("seed hostel %s: %w", in.Name, err)
		}
		hostels++
	}
	students := 0
	for _, in := range seedStudents {
		_, _, err := svc.RegisterStudent(ctx, in)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			continue
		case err != nil:
			return hostels, students, fmt.Errorf("seed student %s: %w", in.RegNo, err)
		}
		students++
	}
	return hostels, students, nil
}
