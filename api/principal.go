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

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
)

// PrincipalHeader carries the caller identity when requests arrive through
// a trusted gateway
const PrincipalHeader = "X-Barangay-Principal"

type PrincipalSource string

const (
	PrincipalSourceHeader PrincipalSource = "header"
	PrincipalSourceSpiffe PrincipalSource = "spiffe"
)

var ErrNoPrincipal = errors.New("no caller principal")

func (p PrincipalSource) Valid() bool {
	switch p {
	case PrincipalSourceHeader, PrincipalSourceSpiffe:
		return true
	}
	return false
}

// principalFromRequest returns the authenticated caller of a request
func principalFromRequest(r *http.Request, source PrincipalSource) (string, error) {
	switch source {
	case PrincipalSourceSpiffe:
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			return "", fmt.Errorf("%w: no client certificate", ErrNoPrincipal)
		}
		id, err := x509svid.IDFromCert(r.TLS.PeerCertificates[0])
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNoPrincipal, err)
		}
		return id.String(), nil
	default:
		principal := strings.TrimSpace(r.Header.Get(PrincipalHeader))
		if principal == "" {
			return "", fmt.Errorf("%w: missing %s header", ErrNoPrincipal, PrincipalHeader)
		}
		return principal, nil
	}
}
