// Copyright 2025 Blink Labs Software
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

// Package roles answers whether a principal holds one of the roles the
// project lifecycle is gated on.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleOfficial Role = "official"
	RoleVendor   Role = "vendor"
	RoleCitizen  Role = "citizen"
)

var ErrUnknownRole = errors.New("unknown role")

// AllRoles lists the roles in a stable order
var AllRoles = []Role{RoleOfficial, RoleVendor, RoleCitizen}

func (r Role) Valid() bool {
	switch r {
	case RoleOfficial, RoleVendor, RoleCitizen:
		return true
	}
	return false
}

// ParseRole returns the role for a name (case-insensitive). "contractor" is
// accepted as an alias for vendor
func ParseRole(name string) (Role, error) {
	tmp := Role(strings.ToLower(strings.TrimSpace(name)))
	if tmp == "contractor" {
		return RoleVendor, nil
	}
	if !tmp.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return tmp, nil
}

// Oracle is the capability check consumed by the lifecycle engine
type Oracle interface {
	HasRole(ctx context.Context, role Role, principal string) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, role Role, principal string) (bool, error)

func (f OracleFunc) HasRole(
	ctx context.Context,
	role Role,
	principal string,
) (bool, error) {
	return f(ctx, role, principal)
}
