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

package barangay

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/blinklabs-io/barangay/api"
	"github.com/spiffe/go-spiffe/v2/bundle/x509bundle"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
)

// apiTLSConfig builds the API listener TLS config. It returns nil when no
// certificate is configured. With SPIFFE principals the server presents its
// SVID and only accepts clients from the configured trust domain
func (n *Node) apiTLSConfig() (*tls.Config, error) {
	if n.config.tlsCertFilePath == "" {
		return nil, nil
	}
	if n.config.principalSource == api.PrincipalSourceSpiffe {
		td, err := spiffeid.TrustDomainFromString(n.config.trustDomain)
		if err != nil {
			return nil, fmt.Errorf("invalid trust domain: %w", err)
		}
		svid, err := x509svid.Load(n.config.tlsCertFilePath, n.config.tlsKeyFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load server SVID: %w", err)
		}
		bundle, err := x509bundle.Load(td, n.config.tlsClientCaFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load trust bundle: %w", err)
		}
		return tlsconfig.MTLSServerConfig(svid, bundle, tlsconfig.AuthorizeMemberOf(td)), nil
	}
	cert, err := tls.LoadX509KeyPair(n.config.tlsCertFilePath, n.config.tlsKeyFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	ret := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if n.config.tlsClientCaFilePath != "" {
		caPem, err := os.ReadFile(n.config.tlsClientCaFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPem) {
			return nil, errors.New("client CA bundle contains no certificates")
		}
		ret.ClientCAs = pool
		ret.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return ret, nil
}
