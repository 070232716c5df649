package truthlink

import "time"

// Significance grades how market-moving a truth-source event is.
type Significance int

const (
	SignificanceLow Significance = iota
	SignificanceMedium
	SignificanceHigh
	SignificanceCritical
)

func (s Significance) String() string {
	switch s {
	case SignificanceLow:
		return "low"
	case SignificanceMedium:
		return "medium"
	case SignificanceHigh:
		return "high"
	case SignificanceCritical:
		return "critical"
	}
	return "unknown"
}

// CongressEvent is a legislative action on a tracked bill.
type CongressEvent struct {
	BillID       string
	Title        string
	ActionType   string // introduced, passed_house, passed_senate, became_law, failed, vetoed
	ActionText   string
	Significance Significance
	IsNew        bool
	Timestamp    time.Time
}

// WeatherEvent is a weather-service alert.
type WeatherEvent struct {
	EventName    string // e.g. "Hurricane Warning"
	Headline     string
	Areas        []string
	States       []string
	Severity     string
	Urgency      string
	Significance Significance
	Timestamp    time.Time
}

// FedEventType enumerates central-bank event kinds.
type FedEventType string

const (
	FedFOMCStatement FedEventType = "fomc_statement"
	FedFOMCMinutes   FedEventType = "fomc_minutes"
	FedRateDecision  FedEventType = "rate_decision"
	FedSpeech        FedEventType = "speech"
)

// FedSentiment tags the tone of a central-bank communication.
type FedSentiment string

const (
	SentimentHawkish FedSentiment = "hawkish"
	SentimentDovish  FedSentiment = "dovish"
	SentimentNeutral FedSentiment = "neutral"
	SentimentNA      FedSentiment = "n/a"
)

// FedEvent is a central-bank announcement.
type FedEvent struct {
	Type         FedEventType
	RateDecision string // "cut", "hike", "hold" when Type is rate_decision
	RateChangeBP int
	Sentiment    FedSentiment
	Significance Significance
	Timestamp    time.Time
}

// SportsEvent is a player-status or injury update.
type SportsEvent struct {
	League         string
	Player         string
	Team           string
	TeamAbbr       string
	Status         string // out, doubtful, questionable, probable, active
	PreviousStatus string
	IsUpdate       bool
	Significance   Significance
	Timestamp      time.Time
}
