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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Handshake related
	ErrHandshakeVersionMismatch = newGatewayError("protocol version mismatch", 1, true) // client should refresh and retry
	ErrHandshakeTokenInvalid    = newGatewayError("authentication token invalid", 2, false)
	ErrHandshakeTokenMissing    = newGatewayError("authentication token required", 3, false)
	ErrHandshakeAborted         = newGatewayError("client went away during handshake", 4, false)
	ErrHandshakeTextureInvalid  = newGatewayError("requested texture not allowed", 5, false)
	ErrHandshakeRefused         = newGatewayError("access to this room refused", 6, false)

	// Identity / upstream service related
	ErrIdentityUnavailable = newGatewayError("identity service unavailable", 100, true)
	ErrIdentityBadResponse = newGatewayError("identity service returned malformed response", 101, false)

	// Protocol related
	ErrProtocolViolation   = newGatewayError("protocol violation", 200, false)
	ErrProtocolUnknownOp   = newGatewayError("unknown message op", 201, false)
	ErrProtocolFrameTooBig = newGatewayError("frame exceeds max size", 202, false)
	ErrProtocolBadPayload  = newGatewayError("malformed message payload", 203, false)

	// Space related
	ErrSpaceNotFound      = newGatewayError("space not found", 300, false)
	ErrSpaceNameInvalid   = newGatewayError("invalid space name", 301, false)
	ErrSpaceNotSubscribed = newGatewayError("session not subscribed to space", 302, false)
	ErrFilterNotFound     = newGatewayError("space filter not found", 303, false)
	ErrMetadataInvalid    = newGatewayError("invalid space metadata", 304, false)

	// Query related
	ErrQueryFailed      = newGatewayError("query execution failed", 400, false)
	ErrQueryUnsupported = newGatewayError("unsupported query kind", 401, false)

	// Session related
	ErrSessionClosed      = newGatewayError("session already disconnecting", 500, false)
	ErrSessionSaturated   = newGatewayError("session send buffer saturated", 501, true)
	ErrSessionDuplicate   = newGatewayError("session id already registered", 502, false)
	ErrSessionNotFound    = newGatewayError("session not found", 503, false)
	ErrSessionRateLimited = newGatewayError("session message rate exceeded", 504, true)

	// Admin bridge related
	ErrAdminUnauthorized = newGatewayError("admin socket access refused", 600, false)
	ErrAdminRoomDenied   = newGatewayError("admin not authorized for room", 601, false)
	ErrAdminBadMessage   = newGatewayError("invalid admin message", 602, false)

	// Backend related
	ErrBackUnavailable = newGatewayError("back service unavailable", 700, true)
	ErrBackForward     = newGatewayError("forward to back failed", 701, false)

	// Presence related
	ErrPresenceMemberUnknown = newGatewayError("member not found in presence store", 800, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to gatewayError
	errUnexpected = newGatewayError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*gatewayError)

// gatewayError is the leaf error type: a stable code plus a retriable hint.
// All errors crossing a package boundary should wrap one of the leaves above.
type gatewayError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newGatewayError(msg string, code int32, retriable bool, options ...errorOption) gatewayError {
	err := gatewayError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e gatewayError) code() int32 {
	return e.errCode
}

func (e gatewayError) Error() string {
	return e.msg
}

func (e gatewayError) Detail() string {
	return e.detail
}

func (e gatewayError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gatewayError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
