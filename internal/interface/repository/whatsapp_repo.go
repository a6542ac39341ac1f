package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/pkg/logger"
)

// WhatsappRepository handles sending messages to the WhatsApp service
type WhatsappRepository struct {
	logger      logger.Logger
	baseURL     string
	bearerToken string
	companyID   string
	agentID     string
	client      *http.Client
}

// NewWhatsappRepository creates a new WhatsApp repository
func NewWhatsappRepository(baseURL, bearerToken, companyID, agentID string, logger logger.Logger) repository.WhatsappRepository {
	return &WhatsappRepository{
		logger:      logger,
		baseURL:     baseURL,
		bearerToken: bearerToken,
		companyID:   companyID,
		agentID:     agentID,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// SendText sends a text message and returns the task ID assigned by the service
func (r *WhatsappRepository) SendText(ctx context.Context, msg *entity.SendMailcastMessage) (string, error) {
	msg.CompanyID = r.companyID
	msg.AgentID = r.agentID
	msg.Type = "text"

	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/mailcast/send-message", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+r.bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errorBody map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", fmt.Errorf("WhatsApp service returned status %d: %v", resp.StatusCode, errorBody)
	}

	var response entity.SendMailcastMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if !response.Success && response.Error.Message != "" {
		return "", fmt.Errorf("WhatsApp service rejected message: %s (code: %s)", response.Error.Message, response.Error.Code)
	}

	r.logger.Info("WhatsApp message queued",
		"taskId", response.Data.TaskID,
		"phone", msg.PhoneNumber)

	return response.Data.TaskID, nil
}

// WhatsappChannel adapts the WhatsApp repository to a notification channel
type WhatsappChannel struct {
	repo repository.WhatsappRepository
}

func NewWhatsappChannel(repo repository.WhatsappRepository) *WhatsappChannel {
	return &WhatsappChannel{repo: repo}
}

func (c *WhatsappChannel) Name() string { return "whatsapp" }

// Send delivers the plain-text rendering to the user's phone
func (c *WhatsappChannel) Send(ctx context.Context, user *entity.User, msg *entity.Message) error {
	if user.Phone == "" {
		return fmt.Errorf("user %s has no phone number: %w", user.ID, entity.ErrValidation)
	}
	_, err := c.repo.SendText(ctx, &entity.SendMailcastMessage{
		PhoneNumber: user.Phone,
		Message:     entity.WAText{Text: msg.Text},
	})
	return err
}
