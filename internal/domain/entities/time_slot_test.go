package entities_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

func TestDefaultSlotSchedule(t *testing.T) {
	slots := entities.DefaultSlotSchedule().Slots()

	require.Len(t, slots, 20)
	assert.Equal(t, "07:00", slots[0])
	assert.Equal(t, "07:30", slots[1])
	assert.Equal(t, "16:30", slots[len(slots)-1])
}

func TestSlotSchedule_From(t *testing.T) {
	s, err := entities.NewSlotSchedule("08:00", "10:00", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "10:00"}, s.From("08:15"))
	assert.Equal(t, []string{"08:00", "09:00", "10:00"}, s.From("08:00"))
	assert.Empty(t, s.From("10:01"))
	assert.Equal(t, "08:00", s.First())
}

func TestParseSlotTime(t *testing.T) {
	got, err := entities.ParseSlotTime("9:00")
	require.NoError(t, err)
	assert.Equal(t, "09:00", got)

	_, err = entities.ParseSlotTime("25:00")
	assert.Error(t, err)
	_, err = entities.ParseSlotTime("nine")
	assert.Error(t, err)
}

func TestParseClinicDate(t *testing.T) {
	d, err := entities.ParseClinicDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", entities.DateKey(d))

	_, err = entities.ParseClinicDate("01/06/2025")
	assert.Error(t, err)
}

func TestNewSlotAvailability_NeverNegative(t *testing.T) {
	for count := 0; count <= 15; count++ {
		a := entities.NewSlotAvailability("09:00", count, 10)
		assert.GreaterOrEqual(t, a.Available, 0)
		expected := 10 - count
		if expected < 0 {
			expected = 0
		}
		assert.Equal(t, expected, a.Available)
		assert.Equal(t, a.Available == 0, a.IsFull)
	}
}

func TestNewSlotAvailability_FullSlot(t *testing.T) {
	a := entities.NewSlotAvailability("09:00", 10, 10)
	assert.Equal(t, entities.SlotAvailability{Time: "09:00", Count: 10, MaxCapacity: 10, Available: 0, IsFull: true}, a)
}
