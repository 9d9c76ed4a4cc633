// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pagination

import (
	"time"

	"github.com/dataforge/migrator/internal/model"
)

func timeToMicros(v model.Value) int64 {
	t := v.Time
	return t.Unix()*1_000_000 + int64(t.Nanosecond())/1_000
}

func microsToTime(us int64) time.Time {
	return time.Unix(us/1_000_000, (us%1_000_000)*1_000).UTC()
}
