package transfer

type SettingsUpdate struct {
	PostsPerDay     int `json:"posts_per_day"`
	WindowStartHour int `json:"window_start_hour"`
	WindowEndHour   int `json:"window_end_hour"`
}
