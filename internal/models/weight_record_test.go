package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBoardEvent_TotalWeight(t *testing.T) {
	ev := NewBoardEvent(10, 20.5, 5, 4.5, true, false)
	assert.InDelta(t, 40.0, ev.TotalWeight, 1e-9)
	assert.True(t, ev.ButtonPressed)
	assert.False(t, ev.ButtonReleased)
}

func TestNewWeightRecord_DateParts(t *testing.T) {
	at := time.Date(2024, time.March, 9, 7, 45, 0, 0, time.Local)
	r := NewWeightRecord(71.3, at)

	assert.Equal(t, 2024, r.Year)
	assert.Equal(t, 3, r.Month)
	assert.Equal(t, 9, r.Day)
	assert.Equal(t, 7, r.Hour)
	assert.Equal(t, 71.3, r.W)
	assert.False(t, r.Morning)
	assert.False(t, r.Last)
}

func TestDaysBetween(t *testing.T) {
	a := &WeightRecord{Year: 2024, Month: 3, Day: 1}
	b := &WeightRecord{Year: 2024, Month: 2, Day: 27}
	assert.Equal(t, 3, DaysBetween(a, b)) // 2024 是闰年
	assert.Equal(t, 3, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestSensorPosition_String(t *testing.T) {
	assert.Equal(t, "top_right", TopRight.String())
	assert.Equal(t, "bottom_left", BottomLeft.String())
	assert.Equal(t, "unknown", SensorPosition(9).String())
}
