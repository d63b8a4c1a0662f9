package api

// NewsItem represents a single NFL news article from an upstream feed
type NewsItem struct {
	Headline  string `json:"headline"`
	Summary   string `json:"summary,omitempty"`
	Published string `json:"published,omitempty"`
	Link      string `json:"link,omitempty"`
}

// Team represents an NFL team
type Team struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	Location     string `json:"location,omitempty"`
}

// Game represents a single game in a team schedule
type Game struct {
	Week     int    `json:"week"`
	Opponent string `json:"opponent"`
	Date     string `json:"date"`
	Home     bool   `json:"home"`
	Result   string `json:"result,omitempty"`
}

// Standing represents a team standing in the league table
type Standing struct {
	Team   string  `json:"team"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Ties   int     `json:"ties"`
	WinPct float64 `json:"win_pct,omitempty"`
}
