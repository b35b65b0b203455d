package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/util"
)

// TwilioSMS sends one-time codes through the Twilio messaging API.
type TwilioSMS struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMS(cfg *config.Config) (*TwilioSMS, error) {
	smsConfig := cfg.SMS

	if smsConfig.AccountSID == "" || smsConfig.AuthToken == "" || smsConfig.From == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: smsConfig.AccountSID,
		Password: smsConfig.AuthToken,
	})

	util.Info("Twilio SMS sender initialized", zap.String("from", smsConfig.From))

	return &TwilioSMS{
		client: client,
		from:   smsConfig.From,
	}, nil
}

func (t *TwilioSMS) SendCode(ctx context.Context, phone, code string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(phone)
	params.SetBody(fmt.Sprintf("Your AgroGuardian verification code is %s. It expires in 10 minutes.", code))

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		util.Error("Failed to send SMS",
			zap.String("phone", phone),
			zap.Error(err))
		return fmt.Errorf("failed to send sms: %w", err)
	}

	if resp.Sid != nil {
		util.Debug("SMS sent", zap.String("sid", *resp.Sid))
	}

	return nil
}
