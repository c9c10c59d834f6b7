package forwarder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultFitbitBaseURL Fitbit Web API
	DefaultFitbitBaseURL = "https://api.fitbit.com"

	fitbitWeightPath = "/1/user/-/body/log/weight.json"
	kgToLbs          = 2.2046
)

// CredentialSource 按用户取 Fitbit access token
type CredentialSource interface {
	Credentials(user string) (string, bool)
}

// FitbitForwarder 把晨重记到用户的 Fitbit 账号（磅）
type FitbitForwarder struct {
	httpClient  *resty.Client
	credentials CredentialSource
	logger      *zap.Logger
	now         func() time.Time
}

// NewFitbitForwarder 创建 Fitbit 上报客户端
func NewFitbitForwarder(baseURL string, credentials CredentialSource, logger *zap.Logger) *FitbitForwarder {
	if baseURL == "" {
		baseURL = DefaultFitbitBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		// en_US 下重量单位为磅
		SetHeader("Accept-Language", "en_US")

	return &FitbitForwarder{
		httpClient:  client,
		credentials: credentials,
		logger:      logger,
		now:         time.Now,
	}
}

// LogWeight 上报体重；用户没有配置 token 时只记录警告
func (f *FitbitForwarder) LogWeight(ctx context.Context, user string, weightKg float64) error {
	token, ok := f.credentials.Credentials(user)
	if !ok {
		f.logger.Warn("No Fitbit credentials for user, skipping", zap.String("user", user))
		return nil
	}

	lbs := weightKg * kgToLbs
	date := f.now().Format("2006-01-02")

	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetFormData(map[string]string{
			"weight": strconv.FormatFloat(lbs, 'f', 2, 64),
			"date":   date,
		}).
		Post(fitbitWeightPath)
	if err != nil {
		return fmt.Errorf("%w: fitbit request: %v", ErrForward, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: fitbit returned status %d: %s", ErrForward, resp.StatusCode(), resp.String())
	}

	f.logger.Info("Weight logged to Fitbit",
		zap.String("user", user),
		zap.Float64("weight_kg", weightKg),
		zap.String("date", date),
	)
	return nil
}
