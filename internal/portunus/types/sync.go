package types

type SyncRequest struct {
	ControllerID string `json:"controllerId" validate:"required"`
}

type SyncReader struct {
	ReaderRef          string   `json:"readerRef"`
	AllowedCredentials []string `json:"allowedCredentials"`
}

// SyncResponse lists readers sorted by ref, each with a sorted allow-list.
type SyncResponse struct {
	Readers []SyncReader `json:"readers"`
}
