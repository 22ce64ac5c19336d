package schedule

// Wire types for the platform's timeline endpoint. Only the fields the
// tracker consumes are mapped.

type timelineResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    timelineData `json:"data"`
}

type timelineData struct {
	Items []dayItem `json:"items"`
}

type dayItem struct {
	DayOfWeek     string     `json:"day_of_week"`
	IsToday       bool       `json:"is_today"`
	DateText      string     `json:"date_text"`
	FullDayOfWeek string     `json:"full_day_of_week"`
	Cards         []cardItem `json:"cards"`
}

type cardItem struct {
	Title     string `json:"title"`
	SeasonID  string `json:"season_id"`
	EpisodeID string `json:"episode_id"`
	IndexShow string `json:"index_show"`
	PubTimeTS int64  `json:"pub_time_ts"`
}
