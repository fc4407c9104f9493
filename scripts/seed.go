package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/adapters/database"
	"github.com/zatekoja/clinicqueue/internal/application/services"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	"github.com/zatekoja/clinicqueue/migrations"
	"github.com/zatekoja/clinicqueue/pkg/config"
)

type seedRoom struct {
	id         string
	doctorID   string
	doctorName string
}

type seedPatient struct {
	id   string
	name string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("queue-seed", cfg.Log.Env, cfg.Log.Level)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	ctx := context.Background()
	if err := pgClient.Migrate(ctx, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE queue_entries, appointments`); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	day := time.Now().Format("2006-01-02")
	if d := os.Getenv("SEED_DATE"); d != "" {
		day = d
	}

	appointmentRepo := database.NewAppointmentAdapter(pgClient, nil)
	queueService := services.NewQueueService(database.NewQueueAdapter(pgClient, nil), nil, nil, nil, services.QueueServiceConfig{
		AllowCancelInConsultation: cfg.Queue.AllowCancelInConsultation,
	})

	rooms := []seedRoom{
		{id: "1", doctorID: "doc-okafor", doctorName: "Dr. Okafor"},
		{id: "2", doctorID: "doc-adeyemi", doctorName: "Dr. Adeyemi"},
		{id: "3", doctorID: "doc-bello", doctorName: "Dr. Bello"},
	}
	patients := []seedPatient{
		{"pat-001", "Chinedu Eze"}, {"pat-002", "Aisha Musa"}, {"pat-003", "Tunde Bakare"},
		{"pat-004", "Ngozi Obi"}, {"pat-005", "Ibrahim Sani"}, {"pat-006", "Funke Ade"},
		{"pat-007", "Emeka Nwosu"}, {"pat-008", "Halima Yusuf"}, {"pat-009", "Segun Ojo"},
	}
	schedule := entities.DefaultSlotSchedule().Slots()

	// 1. Appointments spread over the morning slots, one room per patient
	var booked, queued int
	for i, p := range patients {
		room := rooms[i%len(rooms)]
		appointment := &entities.Appointment{
			ID:        uuid.New().String(),
			PatientID: p.id,
			Date:      day,
			Time:      schedule[i%6],
			RoomID:    room.id,
			StaffID:   room.doctorID,
			Status:    entities.AppointmentStatusConfirmed,
			CreatedAt: time.Now(),
		}
		if err := appointmentRepo.Create(ctx, appointment); err != nil {
			log.Error().Err(err).Str("patient", p.name).Msg("Failed to create appointment")
			continue
		}
		booked++

		// 2. The first two thirds have arrived and are queued
		if i >= len(patients)*2/3 {
			continue
		}
		appointmentID := appointment.ID
		if _, err := queueService.ReceivePatient(ctx, services.ReceiveRequest{
			PatientID:     p.id,
			PatientName:   p.name,
			RoomID:        room.id,
			DoctorID:      room.doctorID,
			DoctorName:    room.doctorName,
			QueueDate:     day,
			QueueTime:     appointment.Time,
			AppointmentID: &appointmentID,
		}); err != nil {
			log.Error().Err(err).Str("patient", p.name).Msg("Failed to queue patient")
			continue
		}
		queued++
	}

	// 3. Room 1 is mid-consultation so dashboards have something to show
	if _, err := queueService.CallNext(ctx, rooms[0].id, day); err != nil {
		log.Warn().Err(err).Msg("Failed to call first patient of room 1")
	}

	log.Info().Str("date", day).Int("appointments", booked).Int("queued", queued).Msg("Seeding completed")
}
