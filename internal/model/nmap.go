package model

// NmapHost is a host which was up and had at least one open port,
// it is the element of full_scan.json
type NmapHost struct {
	IP       string     `json:"ip"`
	Hostname string     `json:"hostname"`
	Status   string     `json:"status"`
	Ports    []NmapPort `json:"ports"`
}

// NmapPort is an open port with the detected service
type NmapPort struct {
	Port      uint16 `json:"port"`
	Protocol  string `json:"protocol"`
	State     string `json:"state"`
	Service   string `json:"service"`
	Product   string `json:"product"`
	Version   string `json:"version"`
	ExtraInfo string `json:"extrainfo"`
	Banner    string `json:"banner"`
}
