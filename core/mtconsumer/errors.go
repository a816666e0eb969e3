// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mtconsumer

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced to callers of the multi-topic consumer's
// public operations. Background tick handlers (partition/pattern watchers)
// never surface these; they log LookupFailed-shaped errors and continue.
var (
	ErrAlreadyClosed     = errors.New("mtconsumer: consumer already closed")
	ErrOperationCanceled = errors.New("mtconsumer: operation canceled")
	ErrIllegalMessageID  = errors.New("mtconsumer: seek only accepts Earliest or Latest message ids")
	ErrRetryDisabled     = errors.New("mtconsumer: ReconsumeLater requires RetryEnable")
	ErrNotSupported      = errors.New("mtconsumer: operation not supported on a multi-topic view")
	ErrInitFailed        = errors.New("mtconsumer: initialization failed")
	ErrInvalidSeekData   = errors.New("mtconsumer: seek data must target either a message id or a timestamp")
)

// ChildError wraps a failure returned by a specific child consumer so
// callers can recover which CompleteTopicName it came from.
type ChildError struct {
	Topic string
	Err   error
}

func (e *ChildError) Error() string {
	return fmt.Sprintf("mtconsumer: child %q: %v", e.Topic, e.Err)
}

func (e *ChildError) Unwrap() error { return e.Err }

// childErr wraps err with the owning topic, or returns nil if err is nil.
func childErr(topic string, err error) error {
	if err == nil {
		return nil
	}
	return &ChildError{Topic: topic, Err: err}
}
