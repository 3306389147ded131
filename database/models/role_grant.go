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

package models

import "time"

type RoleGrant struct {
	CreatedAt time.Time
	Role      string `gorm:"uniqueIndex:idx_role_grant_unique,priority:1;size:32;not null"`
	Principal string `gorm:"uniqueIndex:idx_role_grant_unique,priority:2;size:255;not null"`
	GrantedBy string `gorm:"size:255"`
	ID        uint   `gorm:"primarykey"`
}

func (RoleGrant) TableName() string {
	return "role_grant"
}
