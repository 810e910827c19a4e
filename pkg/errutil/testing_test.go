// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/youchat/youchat/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_HASH")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("operation", "get session").Errorf("store down")
	errutil.AssertErrorContext(t, err, "operation", "get session")
}

func TestAssertErrorPublic(t *testing.T) {
	err := oops.Code("USER_INVALID_USERNAME").
		Public("username must be between 3 and 50 characters").
		Errorf("too short")
	errutil.AssertErrorPublic(t, oops.With("field", "username").Wrap(err),
		"username must be between 3 and 50 characters")
}
