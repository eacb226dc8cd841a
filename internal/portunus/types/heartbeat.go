package types

// PingRequest is the enveloped liveness check.
type PingRequest struct {
	ControllerID string    `json:"controllerId" validate:"required"`
	Timestamp    Timestamp `json:"timestamp"`
}

type PingResponse struct {
	Status     string `json:"status"`
	ServerTime string `json:"serverTime"`
}

// HeartbeatRequest is the coarse, unenveloped device heartbeat.
type HeartbeatRequest struct {
	ControllerID    string `json:"controller_id"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	DoorClosed      *bool  `json:"door_closed,omitempty"`
	RSSIDbm         *int   `json:"rssi_dbm,omitempty"`
	IP              string `json:"ip,omitempty"`
	FreeHeapBytes   uint32 `json:"free_heap_bytes,omitempty"`
	Sequence        uint32 `json:"seq,omitempty"`
}

type HeartbeatResponse struct {
	OK           bool   `json:"ok"`
	Known        bool   `json:"known"`
	ControllerID string `json:"controller_id"`
	ServerTime   string `json:"server_time"`
}
