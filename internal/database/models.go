package database

import "time"

// ImgurToken is the persisted OAuth token pair. The table holds at most one
// row; every successful refresh overwrites it.
type ImgurToken struct {
	ID           int64     `db:"id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	UpdatedAt    time.Time `db:"updated_at"`
}
