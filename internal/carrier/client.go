// Package carrier books shipping labels through a ShipEngine-style label API.
package carrier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/dropship/internal/catalog"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/observability"
)

const defaultBaseURL = "https://api.shipengine.com"

var (
	ErrNotConfigured  = errors.New("carrier label API is not configured")
	ErrUnknownService = errors.New("unknown shipping method")
	ErrInvalidWeight  = errors.New("shipment weight must be positive")
	ErrEmptyLabel     = errors.New("carrier returned an empty label")
)

type BillParty string

const (
	BillSender     BillParty = "sender"
	BillThirdParty BillParty = "third_party"
)

// Billing selects who pays for postage. Third-party billing charges the
// customer's own carrier account.
type Billing struct {
	Party         BillParty
	AccountNumber string
	PostalCode    string
	CountryCode   string
}

type LabelRequest struct {
	Reference   string
	ShipFrom    models.Address
	ShipTo      models.Address
	WeightLbs   decimal.Decimal
	MethodLabel string
	Carrier     string
	Billing     Billing
}

type Label struct {
	TrackingNumber string
	Carrier        string
	ServiceCode    string
	PDF            []byte
}

// APIError is a non-2xx response from the label API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("label API returned status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	services   *catalog.CarrierCatalog
}

func NewClient(config Config, services *catalog.CarrierCatalog, httpClient *http.Client) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		var host string
		if parsed, err := url.Parse(baseURL); err == nil {
			host = parsed.Host
		}
		httpClient = observability.NewHTTPClient(60*time.Second, host)
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		httpClient: httpClient,
		services:   services,
	}
}

type labelAddress struct {
	Name          string `json:"name"`
	CompanyName   string `json:"company_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2,omitempty"`
	CityLocality  string `json:"city_locality"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	CountryCode   string `json:"country_code"`
}

type labelWeight struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type labelPackage struct {
	Weight labelWeight `json:"weight"`
}

type advancedOptions struct {
	BillToParty       string `json:"bill_to_party,omitempty"`
	BillToAccount     string `json:"bill_to_account,omitempty"`
	BillToPostalCode  string `json:"bill_to_postal_code,omitempty"`
	BillToCountryCode string `json:"bill_to_country_code,omitempty"`
}

type labelShipment struct {
	ServiceCode     string          `json:"service_code"`
	ExternalID      string          `json:"external_shipment_id,omitempty"`
	ShipTo          labelAddress    `json:"ship_to"`
	ShipFrom        labelAddress    `json:"ship_from"`
	Packages        []labelPackage  `json:"packages"`
	AdvancedOptions advancedOptions `json:"advanced_options"`
}

type createLabelRequest struct {
	Shipment          labelShipment `json:"shipment"`
	LabelFormat       string        `json:"label_format"`
	LabelDownloadType string        `json:"label_download_type"`
}

type createLabelResponse struct {
	TrackingNumber string `json:"tracking_number"`
	CarrierCode    string `json:"carrier_code"`
	ServiceCode    string `json:"service_code"`
	LabelDownload  struct {
		Href string `json:"href"`
	} `json:"label_download"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// BookLabel purchases a label and returns its tracking number and PDF bytes.
func (c *Client) BookLabel(ctx context.Context, req LabelRequest) (*Label, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if !req.WeightLbs.IsPositive() {
		return nil, ErrInvalidWeight
	}

	service, ok := c.services.Lookup(req.MethodLabel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, req.MethodLabel)
	}
	carrierName := DisplayName(req.Carrier)
	if carrierName == "" {
		carrierName = service.Carrier
	}

	payload := createLabelRequest{
		Shipment: labelShipment{
			ServiceCode: service.Code,
			ExternalID:  req.Reference,
			ShipTo:      toLabelAddress(req.ShipTo),
			ShipFrom:    toLabelAddress(req.ShipFrom),
			Packages: []labelPackage{{
				Weight: labelWeight{Value: req.WeightLbs.InexactFloat64(), Unit: "pound"},
			}},
		},
		LabelFormat:       "pdf",
		LabelDownloadType: "inline",
	}
	if req.Billing.Party == BillThirdParty {
		country := req.Billing.CountryCode
		if country == "" {
			country = "US"
		}
		payload.Shipment.AdvancedOptions = advancedOptions{
			BillToParty:       string(BillThirdParty),
			BillToAccount:     req.Billing.AccountNumber,
			BillToPostalCode:  req.Billing.PostalCode,
			BillToCountryCode: country,
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal label request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/labels", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to book label: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read label response: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close label response body: %w", closeErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(body))
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && len(errResp.Errors) > 0 {
			message = errResp.Errors[0].Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	var result createLabelResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse label response: %w", err)
	}
	if strings.TrimSpace(result.TrackingNumber) == "" {
		return nil, fmt.Errorf("label response is missing a tracking number")
	}

	pdf, err := decodeInlineLabel(result.LabelDownload.Href)
	if err != nil {
		return nil, err
	}

	if result.CarrierCode != "" {
		carrierName = DisplayName(result.CarrierCode)
	}
	return &Label{
		TrackingNumber: result.TrackingNumber,
		Carrier:        carrierName,
		ServiceCode:    service.Code,
		PDF:            pdf,
	}, nil
}

// decodeInlineLabel accepts either bare base64 or a data URI.
func decodeInlineLabel(href string) ([]byte, error) {
	encoded := strings.TrimSpace(href)
	if _, after, ok := strings.Cut(encoded, ";base64,"); ok {
		encoded = after
	}
	if encoded == "" {
		return nil, ErrEmptyLabel
	}
	pdf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode label: %w", err)
	}
	if len(pdf) == 0 {
		return nil, ErrEmptyLabel
	}
	return pdf, nil
}

func toLabelAddress(addr models.Address) labelAddress {
	country := strings.ToUpper(strings.TrimSpace(addr.Country))
	if country == "" {
		country = "US"
	}
	return labelAddress{
		Name:          addr.DisplayName(),
		CompanyName:   strings.TrimSpace(addr.Company),
		Phone:         strings.TrimSpace(addr.Phone),
		AddressLine1:  strings.TrimSpace(addr.Street1),
		AddressLine2:  strings.TrimSpace(addr.Street2),
		CityLocality:  strings.TrimSpace(addr.City),
		StateProvince: strings.TrimSpace(addr.State),
		PostalCode:    strings.TrimSpace(addr.PostalCode),
		CountryCode:   country,
	}
}
