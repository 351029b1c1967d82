package virustotal

import "secops-dashboard/internal/scoring"

// Object is the "data" member of a VirusTotal v3 response. Lookups of files,
// addresses and domains carry last_analysis_stats; analyses carry stats.
type Object struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes Attributes        `json:"attributes"`
	Links      map[string]string `json:"links,omitempty"`
}

type Attributes struct {
	LastAnalysisStats   *scoring.Stats          `json:"last_analysis_stats,omitempty"`
	LastAnalysisResults map[string]EngineResult `json:"last_analysis_results,omitempty"`
	LastAnalysisDate    int64                   `json:"last_analysis_date,omitempty"`
	Stats               *scoring.Stats          `json:"stats,omitempty"`
	Results             map[string]EngineResult `json:"results,omitempty"`
	Status              string                  `json:"status,omitempty"`
	Date                int64                   `json:"date,omitempty"`
	Reputation          int                     `json:"reputation"`
	TotalVotes          *Votes                  `json:"total_votes,omitempty"`
	Tags                []string                `json:"tags,omitempty"`

	// ip_address / domain
	Country   string            `json:"country,omitempty"`
	ASOwner   string            `json:"as_owner,omitempty"`
	ASN       int               `json:"asn,omitempty"`
	Network   string            `json:"network,omitempty"`
	Registrar string            `json:"registrar,omitempty"`
	Category  map[string]string `json:"categories,omitempty"`

	// file
	MeaningfulName  string `json:"meaningful_name,omitempty"`
	TypeDescription string `json:"type_description,omitempty"`
	Size            int64  `json:"size,omitempty"`
	MD5             string `json:"md5,omitempty"`
	SHA1            string `json:"sha1,omitempty"`
	SHA256          string `json:"sha256,omitempty"`
}

type EngineResult struct {
	Category   string `json:"category"`
	EngineName string `json:"engine_name"`
	Method     string `json:"method,omitempty"`
	Result     string `json:"result,omitempty"`
}

type Votes struct {
	Harmless  int `json:"harmless"`
	Malicious int `json:"malicious"`
}

// DetectionStats returns whichever verdict counts the object carries, or nil.
func (o *Object) DetectionStats() *scoring.Stats {
	if o == nil {
		return nil
	}
	if o.Attributes.LastAnalysisStats != nil {
		return o.Attributes.LastAnalysisStats
	}
	return o.Attributes.Stats
}

type envelope struct {
	Data Object `json:"data"`
}
