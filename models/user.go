package models

type User struct {
	LoggedIn      bool   `json:"logged_in"`
	WalletAddress string `json:"wallet_address,omitempty"`
	NetworkID     uint64 `json:"network_id"`
	AppNetworkID  uint64 `json:"app_network_id"`
	WrongNetwork  bool   `json:"wrong_network"`
	IsManager     bool   `json:"is_manager"`
}
