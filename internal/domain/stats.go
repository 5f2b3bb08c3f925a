package domain

// SiteStats are the public counters shown on the home page.
type SiteStats struct {
	MaleBiodata   int `json:"male_biodata"`
	FemaleBiodata int `json:"female_biodata"`
	TotalBiodata  int `json:"total_biodata"`
	Marriages     int `json:"marriages"`
}
