package models

// Notification is a rendered outbound email for one delivered message
type Notification struct {
	To        string
	ToName    string
	Subject   string
	HTML      string
	Text      string
	MessageID string
}

// SendReceipt describes a notification accepted by the transport
type SendReceipt struct {
	MessageID  string
	ArchiveRef string
}
