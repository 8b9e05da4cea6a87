package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/rollcall/internal/models"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// SecurityAlerter notifies an operator about events that may indicate an attack.
type SecurityAlerter interface {
	DeviceBlocked(ctx context.Context, fp models.Fingerprint, attempts int)
	TokenMismatch(ctx context.Context, userID, selector, ip string)
}

// NoopAlerter is used when no alert recipient is configured.
type NoopAlerter struct{}

func (NoopAlerter) DeviceBlocked(context.Context, models.Fingerprint, int) {}
func (NoopAlerter) TokenMismatch(context.Context, string, string, string)  {}

// sesSender is the part of *ses.Client the alerter calls.
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

const alertSendTimeout = 10 * time.Second

// AWSSESAlerter sends security alerts using AWS SES. Sends happen in the
// background so a slow mail provider never delays a login response.
type AWSSESAlerter struct {
	client      sesSender
	fromAddress string
	toAddress   string
	logger      *slog.Logger
	async       bool
}

// NewAWSSESAlerter creates a new AWS SES alerter
func NewAWSSESAlerter(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlerter{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
		async:       true,
	}, nil
}

func (a *AWSSESAlerter) DeviceBlocked(ctx context.Context, fp models.Fingerprint, attempts int) {
	body := fmt.Sprintf(`A device was blocked after %d failed login attempts.

IP address: %s
User agent: %s
Time:       %s

The device stays blocked until an administrator removes it from the blocked devices list.
`, attempts, fp.IPAddress, pkglogger.TruncateUserAgent(fp.UserAgent, 200), time.Now().UTC().Format(time.RFC3339))

	a.send(ctx, "[rollcall] Device blocked after failed logins", body)
}

func (a *AWSSESAlerter) TokenMismatch(ctx context.Context, userID, selector, ip string) {
	body := fmt.Sprintf(`A remember-me cookie was presented with a valid selector but the wrong validator.
The token has been deleted. This can indicate a stolen cookie.

User ID:  %s
Selector: %s
IP:       %s
Time:     %s
`, userID, pkglogger.SelectorPrefix(selector), ip, time.Now().UTC().Format(time.RFC3339))

	a.send(ctx, "[rollcall] Possible remember-me token theft", body)
}

func (a *AWSSESAlerter) send(ctx context.Context, subject, textBody string) {
	if !a.async {
		a.deliver(ctx, subject, textBody)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertSendTimeout)
		defer cancel()
		a.deliver(ctx, subject, textBody)
	}()
}

func (a *AWSSESAlerter) deliver(ctx context.Context, subject, textBody string) {
	input := &ses.SendEmailInput{
		Source: aws.String(a.fromAddress),
		Destination: &types.Destination{
			ToAddresses: strings.Split(a.toAddress, ","),
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		a.logger.Error("failed to send security alert via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return
	}

	a.logger.Info("security alert sent",
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))
}
