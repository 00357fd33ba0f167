package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// LoggingCodeSender writes codes to the log instead of a real gateway.
// Development use only.
type LoggingCodeSender struct {
	logger *slog.Logger
}

func NewLoggingCodeSender(logger *slog.Logger) *LoggingCodeSender {
	return &LoggingCodeSender{logger: logger}
}

func (s *LoggingCodeSender) Send(ctx context.Context, channel domain.ProviderType, recipient, code string, purpose domain.Purpose) error {
	s.logger.InfoContext(ctx, "verification code delivery",
		"module", "events.code_sender",
		"layer", "adapter",
		"operation", "send_code",
		"outcome", "success",
		"channel", channel,
		"recipient", recipient,
		"purpose", purpose,
	)
	return nil
}

// GatewayCodeSender posts delivery requests to an SMS/email gateway webhook.
// A gateway timeout surfaces as domain.ErrUpstreamTimeout so the outbox
// worker retries instead of silently dropping the code.
type GatewayCodeSender struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

func NewGatewayCodeSender(endpoint, apiKey string, httpClient *http.Client) *GatewayCodeSender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GatewayCodeSender{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}
}

func (s *GatewayCodeSender) Send(ctx context.Context, channel domain.ProviderType, recipient, code string, purpose domain.Purpose) error {
	body, err := json.Marshal(map[string]string{
		"channel":   string(channel),
		"recipient": recipient,
		"code":      code,
		"purpose":   string(purpose),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
