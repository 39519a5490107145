package domain_test

import (
	"testing"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/stretchr/testify/assert"
)

func TestSeasonFor(t *testing.T) {
	tests := []struct {
		month      time.Month
		wantSeason domain.Season
		wantYear   int
	}{
		{time.January, domain.SeasonA, 2023},
		{time.February, domain.SeasonB, 2024},
		{time.June, domain.SeasonB, 2024},
		{time.July, domain.SeasonC, 2024},
		{time.August, domain.SeasonC, 2024},
		{time.September, domain.SeasonA, 2024},
		{time.December, domain.SeasonA, 2024},
	}

	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			season, year := domain.SeasonFor(time.Date(2024, tt.month, 15, 12, 0, 0, 0, time.UTC))
			assert.Equal(t, tt.wantSeason, season)
			assert.Equal(t, tt.wantYear, year)
		})
	}
}
