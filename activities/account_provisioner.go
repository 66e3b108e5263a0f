package activities

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// AccountProvisioner calls a downstream account-provisioning service over
// HTTP. It is the saga's "provision account" step action.
type AccountProvisioner struct {
	client  *resty.Client
	baseURL string
}

// ProvisionerConfig configures the resty client backing AccountProvisioner.
type ProvisionerConfig struct {
	BaseURL     string        `yaml:"base_url" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	RetryWaitMs int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// NewAccountProvisioner builds an AccountProvisioner from cfg.
func NewAccountProvisioner(cfg ProvisionerConfig) *AccountProvisioner {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMs) * time.Millisecond).
		SetDebug(cfg.Debug)

	return &AccountProvisioner{client: client, baseURL: cfg.BaseURL}
}

// ProvisionRequest is the account-creation payload sent downstream.
type ProvisionRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// ProvisionResult is what the step action records as its step result.
type ProvisionResult struct {
	AccountID  string `json:"account_id"`
	StatusCode int    `json:"status_code"`
}

// Provision calls POST {baseURL}/accounts with req as the body. Its result
// becomes the saga step's recorded value; its error, if non-nil, drives the
// step's retry loop.
func (a *AccountProvisioner) Provision(req ProvisionRequest) (ProvisionResult, error) {
	var result struct {
		AccountID string `json:"account_id"`
	}
	var errBody map[string]any

	resp, err := a.client.R().
		SetBody(req).
		SetResult(&result).
		SetError(&errBody).
		Post(a.baseURL + "/accounts")
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("activities: provision account: %w", err)
	}
	if resp.IsError() {
		return ProvisionResult{}, fmt.Errorf("activities: provision account: downstream returned %s: %v", resp.Status(), errBody)
	}

	return ProvisionResult{AccountID: result.AccountID, StatusCode: resp.StatusCode()}, nil
}

// Deprovision calls DELETE {baseURL}/accounts/{accountID}. It is the
// compensation for Provision.
func (a *AccountProvisioner) Deprovision(accountID string) error {
	resp, err := a.client.R().Delete(a.baseURL + "/accounts/" + accountID)
	if err != nil {
		return fmt.Errorf("activities: deprovision account %s: %w", accountID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("activities: deprovision account %s: downstream returned %s", accountID, resp.Status())
	}
	return nil
}
