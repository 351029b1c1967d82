package otx

type Pulse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	AuthorName        string   `json:"author_name"`
	Modified          string   `json:"modified"`
	Created           string   `json:"created"`
	Tags              []string `json:"tags"`
	TargetedCountries []string `json:"targeted_countries"`
	Adversary         string   `json:"adversary"`
	TLP               string   `json:"tlp"`
	References        []string `json:"references"`
}

type PulseList struct {
	Count   int     `json:"count"`
	Next    string  `json:"next,omitempty"`
	Results []Pulse `json:"results"`
}

type PulseInfo struct {
	Count  int     `json:"count"`
	Pulses []Pulse `json:"pulses"`
}

type IPResponse struct {
	Indicator     string    `json:"indicator"`
	Reputation    int       `json:"reputation"`
	CountryCode   string    `json:"country_code"`
	CountryName   string    `json:"country_name"`
	ASN           string    `json:"asn"`
	ContinentCode string    `json:"continent_code"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	PulseInfo     PulseInfo `json:"pulse_info"`
}

type DomainResponse struct {
	Indicator  string    `json:"indicator"`
	Whois      string    `json:"whois"`
	Reputation int       `json:"reputation"`
	Category   []string  `json:"category,omitempty"`
	PulseInfo  PulseInfo `json:"pulse_info"`
}

type FileInfo struct {
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	MD5      string `json:"md5"`
	SHA1     string `json:"sha1"`
	SHA256   string `json:"sha256"`
}

type FileResponse struct {
	Indicator string    `json:"indicator"`
	PulseInfo PulseInfo `json:"pulse_info"`
	Analysis  struct {
		Info FileInfo `json:"info"`
	} `json:"analysis"`
}

type Region struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ThreatMap struct {
	Regions []Region `json:"regions"`
}
