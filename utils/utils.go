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

// Package utils holds small, dependency-free helpers shared across the
// transport and consumer packages.
package utils

import "fmt"

// UndefRequestID is used for requests (such as the initial CONNECT) that
// aren't associated with a particular request id.
const UndefRequestID = ^uint64(0)

// ClientVersion and ProtoVersion identify this client to a Pulsar broker
// during the connection handshake.
const (
	ClientVersion = "pepper-iot-pulsar-client-go"
	ProtoVersion  = int32(13)
)

// NewUnexpectedErrMsg builds an error describing a response frame of an
// unexpected command type, including enough context (producer/consumer id,
// sequence id) to correlate it with the request that triggered it.
func NewUnexpectedErrMsg(msgType fmt.Stringer, id, seqID uint64) error {
	return fmt.Errorf("unexpected message type %q received for id %d, sequence id %d", msgType, id, seqID)
}

// AsyncErrors is a best-effort, non-blocking forwarder of background errors
// (reconnect failures, tick handler failures) to an optional caller-supplied
// channel. Sends never block: if the channel is unbuffered/full or nil, the
// error is dropped rather than stalling the producing goroutine.
type AsyncErrors chan<- error

// Send forwards err on the underlying channel without blocking. If the
// channel is nil, or there's no ready receiver, the error is dropped.
func (a AsyncErrors) Send(err error) {
	if a == nil || err == nil {
		return
	}

	select {
	case a <- err:
	default:
	}
}
