package flows

// Inbound SessionInit processing is throttled so a chatty peer can
// not flood the factory path with new responder flows.

import (
	"github.com/juju/ratelimit"
	"github.com/varunkm/corda/config"
)

type InitLimiter struct {
	bucket *ratelimit.Bucket
}

func NewInitLimiter(config_obj *config.Config) *InitLimiter {
	rate := config_obj.Flows.MaxInitsPerSecond
	if rate <= 0 {
		return &InitLimiter{}
	}
	return &InitLimiter{
		bucket: ratelimit.NewBucketWithRate(rate, int64(rate)+1),
	}
}

// Allow returns false when the init should be dropped. A dropped init
// stays unacknowledged on the transport; it is only seen again when
// the transport redelivers it or the initiator republishes it after a
// restart.
func (self *InitLimiter) Allow() bool {
	if self.bucket == nil {
		return true
	}
	return self.bucket.TakeAvailable(1) == 1
}
