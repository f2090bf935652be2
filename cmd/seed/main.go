package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

const (
	doctorCount      = 12
	weeksOfSlots     = 2
	appointmentCount = 40
)

var specializations = []string{
	"Therapy",
	"Surgery",
	"Dermatology",
	"Dentistry",
	"Ophthalmology",
	"Cardiology",
}

var species = []string{"cat", "dog", "rabbit", "parrot", "ferret", "hamster"}

var complaints = []string{
	"annual vaccination",
	"limping on the front leg",
	"not eating for two days",
	"skin rash and itching",
	"dental check",
	"follow-up after surgery",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "dev").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	doctors, err := seedDoctors(ctx, pool, faker, doctorCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	services, err := seedServices(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}

	repo := appointment.NewPgRepository(pool)
	opts := appointment.Options{
		Location: cfg.Location,
		Logger:   logger.Level(zerolog.WarnLevel),
	}
	slots := appointment.NewSlotStore(repo, opts)
	service := appointment.NewService(repo, slots, opts)

	available, err := seedSlots(ctx, slots, doctors, cfg.Location, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed slots")
	}
	if err := seedAppointments(ctx, service, faker, available, services, appointmentCount, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+faker.Name(), specializations[i%len(specializations)])
		if err != nil {
			return nil, fmt.Errorf("insert doctor: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(specializations))
	for _, spec := range specializations {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, specialization, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, spec+" consultation", spec)
		if err != nil {
			return nil, fmt.Errorf("insert service: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedSlots gives every doctor weekday half-hour slots from 09:00 to 17:00.
func seedSlots(ctx context.Context, store *appointment.SlotStore, doctors []uuid.UUID, loc *time.Location, logger zerolog.Logger) ([]appointment.Slot, error) {
	from := appointment.DateOf(time.Now().In(loc))
	to := from.AddDate(0, 0, 7*weeksOfSlots-1)
	weekdays := appointment.NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

	var created []appointment.Slot
	for _, doctorID := range doctors {
		res, err := store.GenerateSlots(ctx, appointment.RecurrenceSpec{
			DoctorID:    doctorID,
			DateFrom:    from,
			DateTo:      to,
			Weekdays:    weekdays,
			TimeFrom:    appointment.NewTimeOfDay(9, 0),
			TimeTo:      appointment.NewTimeOfDay(17, 0),
			StepMinutes: 30,
		})
		if err != nil {
			return nil, fmt.Errorf("generate slots for %s: %w", doctorID, err)
		}
		created = append(created, res.Created...)
		logger.Info().
			Str("doctor_id", doctorID.String()).
			Int("created", len(res.Created)).
			Int("skipped", len(res.Failures)).
			Msg("slots seeded")
	}
	return created, nil
}

// seedAppointments books a sample of slots and walks some of the bookings
// further through the lifecycle.
func seedAppointments(ctx context.Context, svc *appointment.Service, faker *gofakeit.Faker, slots []appointment.Slot, services []uuid.UUID, count int, logger zerolog.Logger) error {
	if len(slots) == 0 {
		return nil
	}
	count = min(count, len(slots))
	stride := len(slots) / count

	for i := 0; i < count; i++ {
		slot := slots[i*stride]
		appt, err := svc.CreateAppointment(ctx, appointment.NewAppointment{
			OwnerID: uuid.New(),
			Pet: appointment.PetInfo{
				Name:    faker.PetName(),
				Species: species[faker.Number(0, len(species)-1)],
			},
			Complaint: complaints[faker.Number(0, len(complaints)-1)],
			SlotID:    &slot.ID,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if _, err := svc.AssignDoctorAndService(ctx, appt.ID, slot.DoctorID, services[i%len(services)]); err != nil {
			return fmt.Errorf("assign appointment: %w", err)
		}

		switch i % 4 {
		case 1, 2:
			_, err = svc.Confirm(ctx, appt.ID)
		case 3:
			_, err = svc.Cancel(ctx, appt.ID)
		}
		if err != nil {
			return fmt.Errorf("advance appointment: %w", err)
		}
	}

	logger.Info().Int("appointments", count).Msg("appointments seeded")
	return nil
}
