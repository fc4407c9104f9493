package services

import (
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

func normalizeDate(value string) (string, error) {
	day, err := entities.ParseClinicDate(value)
	if err != nil {
		return "", apperrors.NewFieldValidationError("date", err.Error())
	}
	return entities.DateKey(day), nil
}

func normalizeSlot(field, value string) (string, error) {
	slot, err := entities.ParseSlotTime(value)
	if err != nil {
		return "", apperrors.NewFieldValidationError(field, err.Error())
	}
	return slot, nil
}

func requireField(field, value string) error {
	if value == "" {
		return apperrors.NewFieldValidationError(field, "is required")
	}
	return nil
}
