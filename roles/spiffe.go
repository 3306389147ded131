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

package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
)

// SpiffeOracle derives roles from SPIFFE IDs. A principal holds a role when
// its ID is a member of the trust domain and the first path segment names
// the role, e.g. spiffe://barangay.example/citizen/juan
type SpiffeOracle struct {
	trustDomain spiffeid.TrustDomain
}

func NewSpiffeOracle(trustDomain string) (*SpiffeOracle, error) {
	td, err := spiffeid.TrustDomainFromString(trustDomain)
	if err != nil {
		return nil, fmt.Errorf("invalid trust domain: %w", err)
	}
	return &SpiffeOracle{trustDomain: td}, nil
}

// TrustDomain returns the trust domain principals must belong to
func (o *SpiffeOracle) TrustDomain() spiffeid.TrustDomain {
	return o.trustDomain
}

func (o *SpiffeOracle) HasRole(
	ctx context.Context,
	role Role,
	principal string,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := spiffeid.FromString(principal)
	if err != nil {
		// Not a SPIFFE ID, so it cannot hold any role here
		return false, nil
	}
	if !id.MemberOf(o.trustDomain) {
		return false, nil
	}
	segments := strings.Split(strings.TrimPrefix(id.Path(), "/"), "/")
	if len(segments) < 2 || segments[1] == "" {
		return false, nil
	}
	segment, err := ParseRole(segments[0])
	if err != nil {
		return false, nil //nolint:nilerr // unknown role segment means no role
	}
	return segment == role, nil
}
