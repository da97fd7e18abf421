package model

// Sentiment is tri-state
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Severity of a pain point
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities low < medium < high
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Readiness is the buying-readiness bucket
type Readiness string

const (
	ReadinessHot  Readiness = "hot"
	ReadinessWarm Readiness = "warm"
	ReadinessCold Readiness = "cold"
)

// KeywordCount is one entry of the keyword top-N
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// NamedEntities groups capitalization-based extractions
type NamedEntities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

// GeneralSignals is the output of the general analyzer
type GeneralSignals struct {
	Topics          []string       `json:"topics"`
	Interests       []string       `json:"interests"`
	Sentiment       Sentiment      `json:"sentiment"`
	Keywords        []KeywordCount `json:"keywords"`
	Entities        NamedEntities  `json:"entities"`
	IndustrySignals []string       `json:"industrySignals"`
	BuyingIntent    []string       `json:"buyingIntent"`
}

// CommunicationMix is the four-bucket style of bilingual text
type CommunicationMix string

const (
	MixPurePrimary   CommunicationMix = "pure_primary"
	MixPureSecondary CommunicationMix = "pure_secondary"
	MixMixed         CommunicationMix = "mixed"
	MixCodeMixed     CommunicationMix = "code_mixed"
)

// LanguageMixSignals is the output of the bilingual analyzer
type LanguageMixSignals struct {
	PrimaryPercent      float64          `json:"primaryPercent"`
	SecondaryPercent    float64          `json:"secondaryPercent"`
	MixedScore          float64          `json:"mixedScore"`
	Style               CommunicationMix `json:"style"`
	CategoryHits        map[string]int   `json:"categoryHits"`
	CulturalMarkers     []string         `json:"culturalMarkers"`
	BuyingIntent        []string         `json:"buyingIntent"`
	BusinessKeywordHits int              `json:"businessKeywordHits"`
}

// CommunicationStyle from vocabulary register
type CommunicationStyle string

const (
	StyleFormal       CommunicationStyle = "formal"
	StyleCasual       CommunicationStyle = "casual"
	StyleProfessional CommunicationStyle = "professional"
	StyleFriendly     CommunicationStyle = "friendly"
)

// EngagementLevel from post volume
type EngagementLevel string

const (
	EngagementHigh   EngagementLevel = "high"
	EngagementMedium EngagementLevel = "medium"
	EngagementLow    EngagementLevel = "low"
)

// PersonalitySignals is the output of the personality analyzer
type PersonalitySignals struct {
	Style         CommunicationStyle `json:"style"`
	Engagement    EngagementLevel    `json:"engagement"`
	DecisionMaker int                `json:"decisionMakerSignals"`
	Influencer    int                `json:"influencerSignals"`
	Traits        []string           `json:"traits"`
	FormalHits    int                `json:"formalHits"`
	CasualHits    int                `json:"casualHits"`
	ObservedPosts int                `json:"observedPosts"`
}

// PainPoint is one activated category
type PainPoint struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Hits     int      `json:"hits"`
	Matched  []string `json:"matched"`
}

// PainPointSignals is the output of the pain-point analyzer
type PainPointSignals struct {
	PainPoints       []PainPoint `json:"painPoints"`
	UrgencyScore     int         `json:"urgencyScore"`
	OpportunityScore int         `json:"opportunityScore"`
	Readiness        Readiness   `json:"readiness"`
	ReadinessReasons []string    `json:"readinessReasons"`
}

// EnrichmentBundle merges the four analyzers over the combined scan text
type EnrichmentBundle struct {
	General     GeneralSignals     `json:"general"`
	LanguageMix LanguageMixSignals `json:"languageMix"`
	Personality PersonalitySignals `json:"personality"`
	PainPoints  PainPointSignals   `json:"painPoints"`
}
