package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services and background jobs.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return Real{} }),
)
