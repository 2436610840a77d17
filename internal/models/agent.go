package models

import "time"

// Agent is a field agent who handles cash deposits and payouts, stored at agents/<id>.
type Agent struct {
	ID        string    `bson:"id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Phone     string    `bson:"phone" json:"phone"`
	Region    string    `bson:"region,omitempty" json:"region,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
