package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/hospital-registration-agent/internal/app"
	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/config"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	count := flag.Int("count", 500, "registrations to book")
	days := flag.Int("days", 14, "book into the next N days")
	seed := flag.Uint64("seed", 0, "fake data seed, 0 for random")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	// sessions are not involved in seeding
	cfg.SessionDriver = config.SessionDriverMemory

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg, logging.New(cfg.LogLevel), prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer a.Close()

	faker := gofakeit.New(*seed)
	stats, err := seedRegistrations(ctx, a.Allocator, faker, *count, *days, time.Now())
	if err != nil {
		log.Fatalf("seed registrations: %v", err)
	}

	log.Printf("seed complete: booked=%d full=%d", stats.booked, stats.full)
}

type seedStats struct {
	booked int
	full   int
}

func seedRegistrations(ctx context.Context, allocator *booking.Allocator, faker *gofakeit.Faker, count, days int, now time.Time) (seedStats, error) {
	log.Printf("seeding %d registrations over %d days", count, days)

	var stats seedStats
	for i := 0; i < count; i++ {
		reg := fakeRegistration(faker, allocator.Catalog(), days, now)

		_, err := allocator.Allocate(ctx, reg)
		switch {
		case err == nil:
			stats.booked++
		case errors.Is(err, booking.ErrSlotFull):
			stats.full++
		default:
			return stats, err
		}

		if (i+1)%100 == 0 {
			log.Printf("registrations processed: %d/%d", i+1, count)
		}
	}
	return stats, nil
}

// fakeRegistration picks a random department, a future date within days and a valid hour
func fakeRegistration(faker *gofakeit.Faker, catalog *booking.Catalog, days int, now time.Time) booking.Registration {
	names := catalog.Names()
	deptName := names[faker.Number(0, len(names)-1)]
	dept, _ := catalog.Lookup(deptName)
	marks := dept.HourlyMarks()

	if days < 1 {
		days = 1
	}
	date := now.AddDate(0, 0, faker.Number(1, days))

	genders := []booking.Gender{booking.GenderMale, booking.GenderFemale, booking.GenderOther}

	return booking.Registration{
		FirstName:  faker.FirstName(),
		LastName:   faker.LastName(),
		Gender:     genders[faker.Number(0, len(genders)-1)],
		Address:    faker.Street() + ", " + faker.City(),
		Email:      faker.Email(),
		Phone:      "+91" + faker.Numerify("##########"),
		Department: deptName,
		Date:       date.Format(booking.DateLayout),
		Time:       marks[faker.Number(0, len(marks)-1)],
	}
}
