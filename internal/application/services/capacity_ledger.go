package services

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

const defaultSlotCapacity = 10

// CapacityLedgerConfig holds the slot grid and capacity
type CapacityLedgerConfig struct {
	SlotCapacity int
	Schedule     entities.SlotSchedule
	// BatchWait is how long the batch loader waits for more keys before
	// querying. Batches are sized to their key count, so it rarely applies.
	BatchWait time.Duration
	// BreakerTimeout is how long the breaker stays open after tripping.
	BreakerTimeout time.Duration
	// BreakerFailures is the consecutive failure count that trips the breaker.
	BreakerFailures uint32
}

// SlotQuery selects one time slot, optionally narrowed to a room or staff member
type SlotQuery struct {
	Time    string
	Date    string
	RoomID  *string
	StaffID *string
}

// CapacityLedger derives slot availability from appointment counts.
//
// Single and batch checks share one counting path, so they always agree.
// When appointment data cannot be read the ledger fails open: the slot is
// reported with full availability and FailOpen set, never as a hard error.
type CapacityLedger struct {
	repo     repositories.AppointmentRepository
	schedule entities.SlotSchedule
	capacity int
	wait     time.Duration
	breaker  *gobreaker.CircuitBreaker
	metrics  *observability.Metrics
}

// NewCapacityLedger creates a capacity ledger. metrics may be nil.
func NewCapacityLedger(repo repositories.AppointmentRepository, cfg CapacityLedgerConfig, metrics *observability.Metrics) *CapacityLedger {
	if cfg.SlotCapacity <= 0 {
		cfg.SlotCapacity = defaultSlotCapacity
	}
	if len(cfg.Schedule.Slots()) == 0 {
		cfg.Schedule = entities.DefaultSlotSchedule()
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = 2 * time.Millisecond
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "appointment-counts",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &CapacityLedger{
		repo:     repo,
		schedule: cfg.Schedule,
		capacity: cfg.SlotCapacity,
		wait:     cfg.BatchWait,
		breaker:  breaker,
		metrics:  metrics,
	}
}

// Schedule returns the daily slot grid the ledger answers for
func (l *CapacityLedger) Schedule() entities.SlotSchedule {
	return l.schedule
}

// CheckAvailability returns the availability of a single slot
func (l *CapacityLedger) CheckAvailability(ctx context.Context, q SlotQuery) (entities.SlotAvailability, error) {
	ctx, span := observability.StartSpan(ctx, "CapacityLedger.CheckAvailability")
	defer span.End()

	slot, err := normalizeSlot("time", q.Time)
	if err != nil {
		return entities.SlotAvailability{}, err
	}
	date, err := normalizeDate(q.Date)
	if err != nil {
		return entities.SlotAvailability{}, err
	}

	counts, err := l.countSlots(ctx, date, []string{slot}, q.RoomID, q.StaffID)
	if err != nil {
		observability.RecordError(span, err)
		return l.failOpen(ctx, "check", slot, err), nil
	}
	return entities.NewSlotAvailability(slot, counts[slot], l.capacity), nil
}

// CheckAvailabilityBatch returns availability for every requested slot,
// keyed by normalized HH:MM. An empty times list means the full day grid.
// Duplicate times are counted once.
func (l *CapacityLedger) CheckAvailabilityBatch(ctx context.Context, times []string, forDate string, roomID, staffID *string) (map[string]entities.SlotAvailability, error) {
	ctx, span := observability.StartSpan(ctx, "CapacityLedger.CheckAvailabilityBatch")
	defer span.End()

	date, err := normalizeDate(forDate)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		times = l.schedule.Slots()
	}

	slots := make([]string, 0, len(times))
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		slot, err := normalizeSlot("times", t)
		if err != nil {
			return nil, err
		}
		if !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
	}

	loader := dataloader.NewBatchedLoader(
		func(ctx context.Context, keys []string) []*dataloader.Result[int] {
			counts, err := l.countSlots(ctx, date, keys, roomID, staffID)
			results := make([]*dataloader.Result[int], len(keys))
			for i, key := range keys {
				if err != nil {
					results[i] = &dataloader.Result[int]{Error: err}
					continue
				}
				results[i] = &dataloader.Result[int]{Data: counts[key]}
			}
			return results
		},
		dataloader.WithBatchCapacity[string, int](len(slots)),
		dataloader.WithWait[string, int](l.wait),
	)

	thunks := make([]dataloader.Thunk[int], len(slots))
	for i, slot := range slots {
		thunks[i] = loader.Load(ctx, slot)
	}

	out := make(map[string]entities.SlotAvailability, len(slots))
	for i, slot := range slots {
		count, err := thunks[i]()
		if err != nil {
			observability.RecordError(span, err)
			out[slot] = l.failOpen(ctx, "batch", slot, err)
			continue
		}
		out[slot] = entities.NewSlotAvailability(slot, count, l.capacity)
	}
	return out, nil
}

// FindNearestAvailableSlot scans forward from the requested time through the
// day grid and returns the first slot that is not full. When every later slot
// is full it falls back to the first slot of the day.
func (l *CapacityLedger) FindNearestAvailableSlot(ctx context.Context, q SlotQuery) (string, error) {
	target, err := normalizeSlot("time", q.Time)
	if err != nil {
		return "", err
	}
	if _, err := normalizeDate(q.Date); err != nil {
		return "", err
	}

	candidates := l.schedule.From(target)
	if len(candidates) == 0 {
		return l.schedule.First(), nil
	}

	availability, err := l.CheckAvailabilityBatch(ctx, candidates, q.Date, q.RoomID, q.StaffID)
	if err != nil {
		return "", err
	}
	for _, slot := range candidates {
		if !availability[slot].IsFull {
			return slot, nil
		}
	}
	return l.schedule.First(), nil
}

// countSlots is the single counting path shared by every availability check
func (l *CapacityLedger) countSlots(ctx context.Context, date string, slots []string, roomID, staffID *string) (map[string]int, error) {
	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.repo.CountBySlots(ctx, repositories.SlotCountQuery{
			Date:    date,
			Times:   slots,
			RoomID:  roomID,
			StaffID: staffID,
		})
	})
	if err != nil {
		return nil, apperrors.NewExternalError("appointment counts unavailable", err)
	}
	return res.(map[string]int), nil
}

func (l *CapacityLedger) failOpen(ctx context.Context, operation, slot string, err error) entities.SlotAvailability {
	observability.LoggerFromContext(ctx).Warn().
		Err(err).
		Str("slot", slot).
		Str("operation", operation).
		Msg("Appointment data unavailable, reporting slot as open")
	observability.RecordFailOpen(ctx, l.metrics, operation)

	availability := entities.NewSlotAvailability(slot, 0, l.capacity)
	availability.FailOpen = true
	return availability
}
