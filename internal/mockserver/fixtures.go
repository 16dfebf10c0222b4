package mockserver

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"

	"github.com/kingrea/unirun/internal/order"
)

// Users are the demo accounts. Sign in with --user 1, 2 or 3.
var Users = []User{
	{ID: "1", Name: "Student 2023001"},
	{ID: "2", Name: "Runner B"},
	{ID: "3", Name: "Li"},
}

// Seed loads the demo accounts and fixture orders, then adds extra random
// orders. Fixture 1007 belongs to user 1 and is being delivered by user 2.
func Seed(s *Store, extra int, seed int64) {
	for _, u := range Users {
		s.AddUser(u)
	}
	now := s.now()
	ago := func(d time.Duration) order.Time { return order.NewTime(now.Add(-d)) }

	s.Put(order.Order{
		ID:              "1001",
		Status:          order.Open,
		RequesterID:     "2",
		Category:        order.CategoryFood,
		RewardPoints:    20,
		LocationPickup:  "Canteen 2, ground floor",
		LocationDeliver: "West dorms, block 5, room 201",
		Description:     "Urgent! A double cheeseburger meal please",
		Tags:            []string{"urgent"},
		CreatedAt:       ago(5 * time.Minute),
	})
	s.Put(order.Order{
		ID:              "1005",
		Status:          order.Open,
		RequesterID:     "3",
		Category:        order.CategoryPackage,
		RewardPoints:    20,
		LocationPickup:  "Parcel station, zone B",
		LocationDeliver: "East campus, block 12",
		Description:     "Small box, ZTO courier",
		PickupCode:      "5-2-2011",
		Tags:            []string{"small"},
		CreatedAt:       ago(10 * time.Minute),
	})
	s.Put(order.Order{
		ID:              "1006",
		Status:          order.Open,
		RequesterID:     "3",
		Category:        order.CategoryPrint,
		RewardPoints:    20,
		LocationPickup:  "Library print shop",
		LocationDeliver: "Teaching building C101",
		Description:     "Print revision notes, single sided, 20 pages",
		CreatedAt:       ago(25 * time.Minute),
	})
	s.Put(order.Order{
		ID:              "1007",
		Status:          order.InProgress,
		RequesterID:     "1",
		RunnerID:        "2",
		Category:        order.CategoryPackage,
		RewardPoints:    15,
		LocationPickup:  "South parcel station",
		LocationDeliver: "North dorms, block 1, room 101",
		Description:     "My parcel, already taken and on its way",
		PickupCode:      "1-1-1007",
		Tags:            []string{"test"},
		CreatedAt:       ago(30 * time.Minute),
		AcceptedAt:      ago(10 * time.Minute),
	})

	if extra <= 0 {
		return
	}
	fake := faker.NewWithSeed(rand.NewSource(seed))
	categories := []string{string(order.CategoryFood), string(order.CategoryPackage), string(order.CategoryPrint)}
	for i := 0; i < extra; i++ {
		requester := Users[fake.IntBetween(0, len(Users)-1)].ID
		s.Put(order.Order{
			Status:          order.Open,
			RequesterID:     requester,
			Category:        order.Category(fake.RandomStringElement(categories)),
			RewardPoints:    fake.IntBetween(5, 30),
			LocationPickup:  fmt.Sprintf("%s %s", fake.Address().StreetName(), fake.Address().BuildingNumber()),
			LocationDeliver: fmt.Sprintf("Dorm block %d, room %d", fake.IntBetween(1, 20), fake.IntBetween(101, 620)),
			Description:     fake.Lorem().Sentence(8),
			CreatedAt:       ago(time.Duration(fake.IntBetween(31, 240)) * time.Minute),
		})
	}
}
