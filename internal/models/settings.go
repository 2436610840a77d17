package models

// PlatformSettings live at settings/platform and are editable by admins.
type PlatformSettings struct {
	AttemptResetPrice float64 `bson:"attemptResetPrice" json:"attemptResetPrice"`
	DailyAttemptLimit int     `bson:"dailyAttemptLimit" json:"dailyAttemptLimit"`
	MinWithdrawal     float64 `bson:"minWithdrawal" json:"minWithdrawal"`
	CheckinReward     float64 `bson:"checkinReward" json:"checkinReward"`
	TileReward        float64 `bson:"tileReward" json:"tileReward"`
	MaintenanceMode   bool    `bson:"maintenanceMode" json:"maintenanceMode"`
}

// DefaultSettings applies when settings/platform has not been written yet.
func DefaultSettings() PlatformSettings {
	return PlatformSettings{
		AttemptResetPrice: 5,
		DailyAttemptLimit: 3,
		MinWithdrawal:     10,
		CheckinReward:     1,
		TileReward:        0.5,
	}
}
