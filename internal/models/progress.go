package models

import "time"

// LevelProgress records one completed level for a user. One document per
// (user, level); re-completion keeps the best score.
type LevelProgress struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"userId"`
	LevelID     string    `bson:"level_id" json:"levelId"`
	Score       int       `bson:"score" json:"score"`
	CompletedAt time.Time `bson:"completed_at" json:"completedAt"`
}
