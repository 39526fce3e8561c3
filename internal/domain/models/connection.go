package models

// ConnectionState is what a dashboard's connection indicator shows.
type ConnectionState string

const (
	ConnectionIdle         ConnectionState = "idle"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDemo         ConnectionState = "demo"
	ConnectionReconnecting ConnectionState = "reconnecting"
)
