package dto

// RegisterDeviceRequest registers an operator device for push alerts
type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// IssueTokenResponse carries a freshly signed API token
type IssueTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
