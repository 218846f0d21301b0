package pipeline_test

import (
	"errors"
	"time"
)

var errMarkerFailure = errors.New("marker failure for test coverage")

func timeNow() time.Time {
	return time.Now().UTC()
}
