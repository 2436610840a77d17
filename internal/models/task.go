package models

import "time"

// Task kinds.
const (
	TaskQuiz        = "quiz"
	TaskMemory      = "memory"
	TaskSpeedMath   = "speed-math"
	TaskClickHunt   = "click-hunt"
	TaskLogicPuzzle = "logic-puzzle"
	TaskManual      = "manual" // needs a reviewed submission
)

// Task is a playable micro-task stored at tasks/<id>.
type Task struct {
	ID            string    `bson:"id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Kind          string    `bson:"kind" json:"kind"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	Reward        float64   `bson:"reward" json:"reward"`
	RequiredLevel int       `bson:"requiredLevel" json:"requiredLevel"`
	MinScore      int       `bson:"minScore,omitempty" json:"minScore,omitempty"`
	Active        bool      `bson:"active" json:"active"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}
