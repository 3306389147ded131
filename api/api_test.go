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

package api_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/barangay/api"
	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/lifecycle"
	"github.com/blinklabs-io/barangay/outbox"
	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/blinklabs-io/barangay/treasury"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db       *database.Database
	treasury *treasury.Treasury
	relay    *outbox.Relay
	server   *api.Server
	http     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	oracle := roles.OracleFunc(func(_ context.Context, role roles.Role, principal string) (bool, error) {
		switch role {
		case roles.RoleOfficial:
			return principal == "kapitan", nil
		case roles.RoleVendor:
			return principal == "builder", nil
		case roles.RoleCitizen:
			return strings.HasPrefix(principal, "citizen-"), nil
		}
		return false, nil
	})
	tr := treasury.NewTreasury(treasury.TreasuryConfig{Database: db})
	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Database:  db,
		Roles:     oracle,
		Custodian: tr,
	})
	require.NoError(t, err)
	relay, err := outbox.NewRelay(outbox.RelayConfig{Database: db})
	require.NoError(t, err)
	server := api.New(api.Config{}, engine, tr, db, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{
		db:       db,
		treasury: tr,
		relay:    relay,
		server:   server,
		http:     ts,
	}
}

func (e *testEnv) do(
	t *testing.T,
	method string,
	path string,
	principal string,
	body any,
	out any,
) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.http.URL+path, reader)
	require.NoError(t, err)
	if principal != "" {
		req.Header.Set(api.PrincipalHeader, principal)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createRequest() api.CreateProjectRequest {
	start := time.Now().UTC().Add(-time.Hour)
	return api.CreateProjectRequest{
		Vendor:      "builder",
		Budget:      1_000_000,
		Category:    project.CategoryEnvironment,
		StartDate:   start,
		EndDate:     start.Add(30 * 24 * time.Hour),
		MetadataURI: "ipfs://mangrove-replanting",
		ReleaseBps:  []uint32{3000, 6000, 1000},
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.treasury.Deposit(context.Background(), "lgu", 2_000_000)
	require.NoError(t, err)

	var created api.ProjectResponse
	resp := env.do(t, http.MethodPost, "/api/v0/projects", "kapitan", createRequest(), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/api/v0/projects/1", resp.Header.Get("Location"))
	assert.NotEmpty(t, resp.Header.Get(api.RequestIDHeader))
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, "kapitan", created.Proposer)
	assert.Equal(t, uint64(300_000), created.AdvancePayment)

	for range 2 {
		var p api.ProjectResponse
		resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/submit", "builder",
			api.SubmitMilestoneRequest{EvidenceURI: "ipfs://photos"}, &p)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		for i := range project.QuorumVotes {
			yes := true
			resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/verify",
				fmt.Sprintf("citizen-%d", i), api.VerifyMilestoneRequest{Consensus: &yes}, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/complete", "kapitan", nil, &p)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var p api.ProjectResponse
	resp = env.do(t, http.MethodGet, "/api/v0/projects/1", "", nil, &p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, p.IsComplete)
	assert.Equal(t, p.Budget, p.Released)

	var m project.Milestone
	resp = env.do(t, http.MethodGet, "/api/v0/projects/1/milestones/0", "", nil, &m)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, project.MilestoneStatusDone, m.Status)
	assert.Equal(t, uint64(600_000), m.ReleaseAmount)

	var vote api.VoteResponse
	resp = env.do(t, http.MethodGet, "/api/v0/projects/1/milestones/1/votes/citizen-0", "", nil, &vote)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, vote.Voted)

	var releases api.ReleasesResponse
	resp = env.do(t, http.MethodGet, "/api/v0/projects/1/releases", "", nil, &releases)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint64(1_000_000), releases.TotalReleased)
	assert.Len(t, releases.Releases, 3)

	var summary treasury.Summary
	resp = env.do(t, http.MethodGet, "/api/v0/treasury", "", nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint64(1_000_000), summary.Balance)

	_, err = env.relay.Flush()
	require.NoError(t, err)
	var events []database.Event
	resp = env.do(t, http.MethodGet, "/api/v0/projects/1/events?count=3", "", nil, &events)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events, 3)
	assert.Equal(t, project.EventTypeProjectCreated, events[0].Type)
	resp = env.do(t, http.MethodGet, "/api/v0/events?from=2&count=100", "", nil, &events)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint64(2), events[0].Sequence)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.treasury.Deposit(context.Background(), "lgu", 1_000_000)
	require.NoError(t, err)

	var errResp api.ErrorResponse
	resp := env.do(t, http.MethodPost, "/api/v0/projects", "", createRequest(), &errResp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, errResp.StatusCode)
	assert.Equal(t, resp.Header.Get(api.RequestIDHeader), errResp.RequestID)

	resp = env.do(t, http.MethodPost, "/api/v0/projects", "builder", createRequest(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	bad := createRequest()
	bad.ReleaseBps = []uint32{5000, 5000}
	resp = env.do(t, http.MethodPost, "/api/v0/projects", "kapitan", bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v0/projects/42", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v0/projects/abc", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v0/projects", "kapitan", createRequest(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/complete", "kapitan", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/verify", "citizen-1",
		map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v0/projects/1/milestones/submit", "builder",
		map[string]any{"evidenceUri": "ipfs://e", "extra": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v0/projects?count=abc", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListProjects(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.treasury.Deposit(context.Background(), "lgu", 10_000_000)
	require.NoError(t, err)
	for range 5 {
		resp := env.do(t, http.MethodPost, "/api/v0/projects", "kapitan", createRequest(), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	var projects []api.ProjectResponse
	resp := env.do(t, http.MethodGet, "/api/v0/projects?count=2&page=2&order=desc", "", nil, &projects)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, projects, 2)
	assert.Equal(t, uint64(3), projects[0].ID)
	assert.Equal(t, "5", resp.Header.Get("X-Pagination-Count-Total"))
	assert.Equal(t, "3", resp.Header.Get("X-Pagination-Page-Total"))

	resp = env.do(t, http.MethodGet, "/api/v0/projects?vendor=nobody", "", nil, &projects)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, projects)

	var count api.CountResponse
	resp = env.do(t, http.MethodGet, "/api/v0/projects/count", "", nil, &count)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint64(5), count.Count)
}

func TestParsePagination(t *testing.T) {
	testDefs := []struct {
		query    string
		expected api.PaginationParams
		err      bool
	}{
		{query: "", expected: api.PaginationParams{Count: 100, Page: 1, Order: "asc"}},
		{query: "count=500&page=0", expected: api.PaginationParams{Count: 100, Page: 1, Order: "asc"}},
		{query: "count=0&page=3&order=DESC", expected: api.PaginationParams{Count: 1, Page: 3, Order: "desc"}},
		{query: "order=sideways", err: true},
		{query: "page=x", err: true},
	}
	for _, testDef := range testDefs {
		req := httptest.NewRequest(http.MethodGet, "/?"+testDef.query, nil)
		params, err := api.ParsePagination(req)
		if testDef.err {
			assert.ErrorIs(t, err, api.ErrInvalidPaginationParameters, testDef.query)
			continue
		}
		require.NoError(t, err, testDef.query)
		assert.Equal(t, testDef.expected, params, testDef.query)
	}
	assert.Equal(t, 20, api.PaginationParams{Count: 10, Page: 3}.Offset())
}

func testSvid(t *testing.T, id string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	uri, err := url.Parse(id)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		URIs:         []*url.URL{uri},
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestSpiffePrincipal(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	oracle, err := roles.NewSpiffeOracle("barangay.example")
	require.NoError(t, err)
	tr := treasury.NewTreasury(treasury.TreasuryConfig{Database: db})
	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Database:  db,
		Roles:     oracle,
		Custodian: tr,
	})
	require.NoError(t, err)
	server := api.New(
		api.Config{PrincipalSource: api.PrincipalSourceSpiffe},
		engine,
		tr,
		db,
		nil,
	)
	handler := server.Handler()

	// No client certificate
	req := httptest.NewRequest(http.MethodPost, "/api/v0/projects", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A citizen certificate authenticates but cannot create projects
	body, err := json.Marshal(createRequest())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v0/projects", bytes.NewReader(body))
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			testSvid(t, "spiffe://barangay.example/citizen/juan"),
		},
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServerStartStop(t *testing.T) {
	env := newTestEnv(t)
	server := api.New(api.Config{ListenAddress: "127.0.0.1:0"}, nil, env.treasury, env.db, nil)
	require.NoError(t, server.Start(context.Background()))
	assert.Error(t, server.Start(context.Background()))
	addr := server.Addr()
	require.NotNil(t, addr)
	resp, err := http.Get("http://" + addr.String() + "/health") //nolint:noctx
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, server.Stop(context.Background()))
	require.NoError(t, server.Stop(context.Background()))
}
