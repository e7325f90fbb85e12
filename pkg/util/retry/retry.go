// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

type config struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      uint64
	isRetryErr      func(err error) bool
}

func newDefaultConfig() *config {
	return &config{
		initialInterval: 200 * time.Millisecond,
		maxInterval:     3 * time.Second,
		maxRetries:      3,
	}
}

// Option configures a retry loop.
type Option func(*config)

// Attempts sets the maximum number of attempts (including the first one).
func Attempts(n uint64) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// Sleep sets the initial backoff interval.
func Sleep(d time.Duration) Option {
	return func(c *config) {
		c.initialInterval = d
	}
}

// MaxSleepTime caps the backoff interval.
func MaxSleepTime(d time.Duration) Option {
	return func(c *config) {
		c.maxInterval = d
	}
}

// RetryErr restricts retries to errors matched by fn; other errors abort
// the loop immediately.
func RetryErr(fn func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = fn
	}
}

// Do executes fn with exponential backoff until it succeeds, the attempt
// budget is exhausted, ctx is canceled, or fn returns a non-retriable error.
// Retriability is taken from merr unless overridden via RetryErr.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	// MaxElapsedTime is governed by ctx, not wall clock.
	b.MaxElapsedTime = 0

	var attempt uint64

	wrapped := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		attempt++
		retriable := merr.IsRetryableErr(err)
		if c.isRetryErr != nil {
			retriable = c.isRetryErr(err)
		}
		if !retriable || errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		if attempt%4 == 0 {
			log.Ctx(ctx).Warn("retry func failed",
				zap.Uint64("retried", attempt),
				zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries-1), ctx)
	return backoff.Retry(wrapped, policy)
}
