package service

import (
	"engz_backend/internal/model"
	"time"
)

const oneDay = 24 * time.Hour

// DaysSince 返回 start 到 now 经过的完整天数，now 早于 start 时为 0
func DaysSince(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / oneDay)
}

// Position 计算当前所处的周和天。超过四周后固定在第 4 周第 5 天，不会越界。
func Position(start, now time.Time) (week, dayOfWeek int) {
	days := DaysSince(start, now)
	week = days/7 + 1
	if week > model.RoutineWeeks {
		week = model.RoutineWeeks
	}
	dayOfWeek = days%7 + 1
	if dayOfWeek > model.RoutineDaysPerWeek {
		dayOfWeek = model.RoutineDaysPerWeek
	}
	return week, dayOfWeek
}
