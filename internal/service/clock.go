package service

import "time"

// Clock 时间源
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now 截断到微秒，与 postgres 时间戳精度一致
func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SystemClock 返回系统时间源（UTC）
func SystemClock() Clock {
	return systemClock{}
}

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return systemClock{}
	}
	return c
}
