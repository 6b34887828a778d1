package telemetry

// ConnectionStatus is the WAN state snapshot polled from the appliance and
// pushed to subscribers. Field names mirror the appliance payload so the
// frame can be forwarded without re-mapping.
type ConnectionStatus struct {
	State         string `json:"state"`
	Type          string `json:"type"`
	Media         string `json:"media"`
	IPv4          string `json:"ipv4,omitempty"`
	IPv6          string `json:"ipv6,omitempty"`
	RateDown      int64  `json:"rate_down"`
	RateUp        int64  `json:"rate_up"`
	BandwidthDown int64  `json:"bandwidth_down"`
	BandwidthUp   int64  `json:"bandwidth_up"`
	BytesDown     int64  `json:"bytes_down"`
	BytesUp       int64  `json:"bytes_up"`
}

// Message is the frame pushed to subscribers on every poll tick.
type Message struct {
	Type string           `json:"type"`
	Data ConnectionStatus `json:"data"`
}

// MessageTypeConnectionStatus identifies connection status frames.
const MessageTypeConnectionStatus = "connection_status"
