package permissions

import "time"

// Level is the access a user holds on one warehouse.
type Level string

const (
	LevelNone  Level = ""
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

func (l Level) Valid() bool {
	switch l {
	case LevelRead, LevelWrite, LevelAdmin:
		return true
	}
	return false
}

// Writes reports whether the level allows stock mutations.
func (l Level) Writes() bool {
	return l == LevelWrite || l == LevelAdmin
}

type Permission struct {
	UserID      int64     `json:"user_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Level       Level     `json:"level"`
	GrantedAt   time.Time `json:"granted_at"`
}

type GrantForm struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Level       string `json:"level" validate:"required,oneof=read write admin"`
}
