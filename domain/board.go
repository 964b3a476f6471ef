package domain

import "time"

// BoardType categorizes a board.
type BoardType string

const (
	BoardChallenges     BoardType = "challenges"
	BoardHackathons     BoardType = "hackathons"
	BoardCertifications BoardType = "certifications"
)

// Valid reports whether t is one of the supported board types.
func (t BoardType) Valid() bool {
	switch t {
	case BoardChallenges, BoardHackathons, BoardCertifications:
		return true
	}
	return false
}

// Board is a named collection of tasks owned by a single user.
type Board struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      BoardType `json:"type"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
