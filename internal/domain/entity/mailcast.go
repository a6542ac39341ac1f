package entity

import "errors"

type SendMailcastMessage struct {
	CompanyID   string  `json:"companyId"`
	AgentID     string  `json:"agentId"`
	PhoneNumber string  `json:"phoneNumber"`
	Message     WAText  `json:"message"`
	Type        string  `json:"type"`
	Reference   *string `json:"reference,omitempty"`
}

// WAText is the text body of a WhatsApp message
type WAText struct {
	Text string `json:"text"`
}

func (m SendMailcastMessage) Validate() error {
	if m.PhoneNumber == "" {
		return errors.New("phone number is required")
	}
	if m.Message.Text == "" {
		return errors.New("message text is required")
	}
	return nil
}

type SendMailcastMessageResponse struct {
	Success bool `json:"success"`
	Data    struct {
		TaskID string `json:"taskId"`
		Status string `json:"status"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
