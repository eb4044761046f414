// Copyright 2022 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	minBackoff = time.Millisecond * 10
	maxBackoff = time.Second * 5
)

// untilCanceled calls the given callback every interval until the given
// context is canceled. After a failure the next call is delayed with an
// increasing backoff.
func untilCanceled(ctx context.Context, log zerolog.Logger, description string, interval time.Duration, cb func() error) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		delay := interval
		if err := cb(); err != nil {
			log.Warn().Err(err).Msgf("%s failed", description)
			loopErrorsTotal.WithLabelValues(description).Inc()
			if backoff > delay {
				delay = backoff
			}
			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = minBackoff
		}
		select {
		case <-ctx.Done():
			log.Debug().Msgf("Stopping %s; context canceled", description)
			return nil
		case <-time.After(delay):
			// Continue
		}
	}
}
