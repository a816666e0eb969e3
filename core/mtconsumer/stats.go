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

import "time"

// ConsumerStats is the aggregated counter snapshot returned by
// GetStatsAsync: per-child counters are summed, IntervalDuration is
// averaged across every child.
type ConsumerStats struct {
	NumMsgsReceived       uint64
	NumBytesReceived      uint64
	NumAcksSent           uint64
	NumAcksFailed         uint64
	NumReceiveFailed      uint64
	NumBatchReceiveFailed uint64
	IntervalDuration      time.Duration
}

// add accumulates other into the receiver in place, used by the stats
// reducer to sum per-child snapshots.
func (s *ConsumerStats) add(other ConsumerStats) {
	s.NumMsgsReceived += other.NumMsgsReceived
	s.NumBytesReceived += other.NumBytesReceived
	s.NumAcksSent += other.NumAcksSent
	s.NumAcksFailed += other.NumAcksFailed
	s.NumReceiveFailed += other.NumReceiveFailed
	s.NumBatchReceiveFailed += other.NumBatchReceiveFailed
}

// reduceStats sums every counter across per-child snapshots and averages
// IntervalDuration. It is called on the Core Actor's goroutine by
// onGetStats, over the per-child snapshots that handler collects from each
// child's Stats() one after another.
func reduceStats(all []ConsumerStats) ConsumerStats {
	var out ConsumerStats
	if len(all) == 0 {
		return out
	}
	var totalInterval time.Duration
	for _, s := range all {
		out.add(s)
		totalInterval += s.IntervalDuration
	}
	out.IntervalDuration = totalInterval / time.Duration(len(all))
	return out
}
