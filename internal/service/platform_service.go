package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/qcom/phoneverify/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	phoneCheckPath      = "/phone_check/v0.1/checks"
	subscriberCheckPath = "/subscriber_check/v0.1/checks"
	simCheckPath        = "/sim_check/v0.1/checks"
	countryCoveragePath = "/coverage/v0.1/countries/"
	deviceCoveragePath  = "/coverage/v0.1/device_ips/"
)

// Executor performs authenticated platform calls.
type Executor interface {
	Execute(ctx context.Context, req Request) (*APIResponse, error)
}

// PlatformService exposes the platform operations the route layer needs.
type PlatformService struct {
	exec   Executor
	logger *logrus.Logger
}

func NewPlatformService(exec Executor, logger *logrus.Logger) *PlatformService {
	return &PlatformService{
		exec:   exec,
		logger: logger,
	}
}

type createCheckRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (s *PlatformService) CreatePhoneCheck(ctx context.Context, phoneNumber string) (*models.PhoneCheck, error) {
	var check models.PhoneCheck
	if err := s.call(ctx, Request{
		Method: http.MethodPost,
		Path:   phoneCheckPath,
		Body:   createCheckRequest{PhoneNumber: phoneNumber},
		Scopes: []string{ScopePhoneCheck},
	}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *PlatformService) GetPhoneCheck(ctx context.Context, checkID string) (*models.PhoneCheck, error) {
	var check models.PhoneCheck
	if err := s.call(ctx, Request{
		Method: http.MethodGet,
		Path:   phoneCheckPath + "/" + url.PathEscape(checkID),
		Scopes: []string{ScopePhoneCheck},
	}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *PlatformService) CreateSubscriberCheck(ctx context.Context, phoneNumber string) (*models.SubscriberCheck, error) {
	var check models.SubscriberCheck
	if err := s.call(ctx, Request{
		Method: http.MethodPost,
		Path:   subscriberCheckPath,
		Body:   createCheckRequest{PhoneNumber: phoneNumber},
		Scopes: []string{ScopeSubscriberCheck},
	}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *PlatformService) GetSubscriberCheck(ctx context.Context, checkID string) (*models.SubscriberCheck, error) {
	var check models.SubscriberCheck
	if err := s.call(ctx, Request{
		Method: http.MethodGet,
		Path:   subscriberCheckPath + "/" + url.PathEscape(checkID),
		Scopes: []string{ScopeSubscriberCheck},
	}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *PlatformService) CreateSimCheck(ctx context.Context, phoneNumber string) (*models.SimCheck, error) {
	var check models.SimCheck
	if err := s.call(ctx, Request{
		Method: http.MethodPost,
		Path:   simCheckPath,
		Body:   createCheckRequest{PhoneNumber: phoneNumber},
		Scopes: []string{ScopeSimCheck},
	}, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// GetCountryCoverage looks up product coverage by ISO country code or
// dialling prefix. The upstream body is returned untouched.
func (s *PlatformService) GetCountryCoverage(ctx context.Context, countryCode string) (*APIResponse, error) {
	return s.exec.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   countryCoveragePath + url.PathEscape(countryCode),
		Scopes: []string{ScopeCoverage},
	})
}

// GetDeviceCoverage looks up coverage for a device IP. Any status from 200
// through 404 is a result; the caller relays both status and body.
func (s *PlatformService) GetDeviceCoverage(ctx context.Context, ipAddress string) (*APIResponse, error) {
	return s.exec.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   deviceCoveragePath + url.PathEscape(ipAddress),
		Scopes: []string{ScopeCoverage},
		Accept: AcceptThrough404,
	})
}

func (s *PlatformService) call(ctx context.Context, req Request, out any) error {
	resp, err := s.exec.Execute(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		s.logger.WithError(err).WithField("path", req.Path).Error("Unexpected platform response")
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return nil
}
