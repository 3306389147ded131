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

package roles_test

import (
	"context"
	"testing"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/bxcodec/faker/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	testDefs := []struct {
		input    string
		expected roles.Role
		valid    bool
	}{
		{"official", roles.RoleOfficial, true},
		{" Vendor ", roles.RoleVendor, true},
		{"contractor", roles.RoleVendor, true},
		{"CITIZEN", roles.RoleCitizen, true},
		{"mayor", "", false},
	}
	for _, testDef := range testDefs {
		role, err := roles.ParseRole(testDef.input)
		if !testDef.valid {
			assert.ErrorIs(t, err, roles.ErrUnknownRole)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, testDef.expected, role)
	}
}

func TestDatabaseOracle(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var principals struct {
		Official string `faker:"username"`
		Citizen  string `faker:"username"`
	}
	require.NoError(t, faker.FakeData(&principals))
	principals.Citizen += "-citizen"

	oracle := roles.NewDatabaseOracle(db, nil)
	require.NoError(t, oracle.Grant(ctx, roles.RoleOfficial, principals.Official, "bootstrap"))
	require.NoError(t, oracle.Grant(ctx, roles.RoleCitizen, principals.Citizen, principals.Official))
	assert.ErrorIs(t, oracle.Grant(ctx, roles.Role("mayor"), principals.Official, ""), roles.ErrUnknownRole)
	assert.Error(t, oracle.Grant(ctx, roles.RoleVendor, "  ", ""))

	ok, err := oracle.HasRole(ctx, roles.RoleOfficial, principals.Official)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = oracle.HasRole(ctx, roles.RoleCitizen, principals.Official)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = oracle.HasRole(ctx, roles.RoleCitizen, "")
	require.NoError(t, err)
	assert.False(t, ok)

	grants, err := oracle.ListGrants(ctx, roles.RoleCitizen)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, principals.Citizen, grants[0].Principal)
	assert.Equal(t, principals.Official, grants[0].GrantedBy)

	existed, err := oracle.Revoke(ctx, roles.RoleCitizen, principals.Citizen)
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = oracle.Revoke(ctx, roles.RoleCitizen, principals.Citizen)
	require.NoError(t, err)
	assert.False(t, existed)
	ok, err = oracle.HasRole(ctx, roles.RoleCitizen, principals.Citizen)
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = oracle.HasRole(cancelled, roles.RoleOfficial, principals.Official)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpiffeOracle(t *testing.T) {
	ctx := context.Background()
	_, err := roles.NewSpiffeOracle("not a domain!")
	require.Error(t, err)
	oracle, err := roles.NewSpiffeOracle("barangay.example")
	require.NoError(t, err)
	assert.Equal(t, "barangay.example", oracle.TrustDomain().Name())

	testDefs := []struct {
		principal string
		role      roles.Role
		expected  bool
	}{
		{"spiffe://barangay.example/citizen/juan", roles.RoleCitizen, true},
		{"spiffe://barangay.example/citizen/juan", roles.RoleOfficial, false},
		{"spiffe://barangay.example/contractor/acme", roles.RoleVendor, true},
		{"spiffe://barangay.example/official/kapitan", roles.RoleOfficial, true},
		{"spiffe://barangay.example/official", roles.RoleOfficial, false},
		{"spiffe://other.example/official/kapitan", roles.RoleOfficial, false},
		{"spiffe://barangay.example/janitor/pedro", roles.RoleCitizen, false},
		{"juan", roles.RoleCitizen, false},
	}
	for _, testDef := range testDefs {
		ok, err := oracle.HasRole(ctx, testDef.role, testDef.principal)
		require.NoError(t, err)
		assert.Equal(t, testDef.expected, ok, "%s as %s", testDef.principal, testDef.role)
	}
}

func TestOracleFunc(t *testing.T) {
	oracle := roles.OracleFunc(func(_ context.Context, role roles.Role, principal string) (bool, error) {
		return role == roles.RoleCitizen && principal == "juan", nil
	})
	ok, err := oracle.HasRole(context.Background(), roles.RoleCitizen, "juan")
	require.NoError(t, err)
	assert.True(t, ok)
}
