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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code returns the error code of the given error.
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gatewayError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr reports whether the given error carries the retriable hint,
// i.e. the client (or an internal retry loop) may reasonably try again.
func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(gatewayError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

type errorField struct {
	name  string
	value any
}

func value(name string, value any) errorField {
	return errorField{name: name, value: value}
}

func (f errorField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

func wrapFields(err gatewayError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i])
	}
	err.detail = err.msg
	return errors.Wrapf(err, "")
}

func wrapFieldsWithDesc(err gatewayError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i])
	}
	if desc != "" {
		err.msg += ": " + desc
	}
	err.detail = err.msg
	return errors.Wrapf(err, "")
}

// Handshake related wrappers.

func WrapErrVersionMismatch(clientVersion, serverVersion string, msg ...string) error {
	err := wrapFields(ErrHandshakeVersionMismatch,
		value("client", clientVersion),
		value("server", serverVersion),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTokenMissing(msg ...string) error {
	err := wrapFields(ErrHandshakeTokenMissing)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrHandshakeAborted(msg ...string) error {
	err := wrapFields(ErrHandshakeAborted)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTokenInvalid(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrHandshakeTokenInvalid, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTextureInvalid(entity string, msg ...string) error {
	err := wrapFields(ErrHandshakeTextureInvalid, value("entity", entity))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIdentityUnavailable(endpoint string, msg ...string) error {
	err := wrapFields(ErrIdentityUnavailable, value("endpoint", endpoint))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIdentityBadResponse(endpoint, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrIdentityBadResponse, reason, value("endpoint", endpoint))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Protocol related wrappers.

func WrapErrUnknownOp(op uint32, msg ...string) error {
	err := wrapFields(ErrProtocolUnknownOp, value("op", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFrameTooBig(size, limit uint32, msg ...string) error {
	err := wrapFields(ErrProtocolFrameTooBig,
		value("size", size),
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrBadPayload(op uint32, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrProtocolBadPayload, reason, value("op", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Space related wrappers.

func WrapErrSpaceNotFound(space any, msg ...string) error {
	err := wrapFields(ErrSpaceNotFound, value("space", space))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSpaceNameInvalid(name any, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSpaceNameInvalid, reason, value("name", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFilterNotFound(space any, filterID string, msg ...string) error {
	err := wrapFields(ErrFilterNotFound,
		value("space", space),
		value("filterID", filterID),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMetadataInvalid(space any, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrMetadataInvalid, reason, value("space", space))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSpaceNotSubscribed(space any, msg ...string) error {
	err := wrapFields(ErrSpaceNotSubscribed, value("space", space))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Query related wrappers.

func WrapErrQueryFailed(id uint32, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrQueryFailed, reason, value("id", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Session related wrappers.

func WrapErrSessionDuplicate(id uint64, msg ...string) error {
	err := wrapFields(ErrSessionDuplicate, value("id", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionNotFound(id uint64, msg ...string) error {
	err := wrapFields(ErrSessionNotFound, value("id", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrQueryUnsupported(kind string, msg ...string) error {
	err := wrapFields(ErrQueryUnsupported, value("kind", kind))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Admin related wrappers.

func WrapErrAdminUnauthorized(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrAdminUnauthorized, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrAdminBadMessage(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrAdminBadMessage, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrAdminRoomDenied(rooms any, msg ...string) error {
	err := wrapFields(ErrAdminRoomDenied, value("rooms", rooms))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Back related wrappers.

func WrapErrBackUnavailable(endpoint string, msg ...string) error {
	err := wrapFields(ErrBackUnavailable, value("endpoint", endpoint))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrBackForward(op uint32, msg ...string) error {
	err := wrapFields(ErrBackForward, value("op", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}
